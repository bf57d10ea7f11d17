// Package dwin provides the serial protocol of DWIN style HMI panels.
package dwin

// Frames on the wire share a fixed layout:
//
//	5A A5 | LEN | CMD | ADDR(hi lo) | PAYLOAD... | [FF FF]
//
// LEN counts every byte after itself, i.e. CMD, ADDR, PAYLOAD and the
// optional terminator. Text writes carry the FF FF terminator, word writes
// and read requests don't.
//
// The panel reports touches by uploading the touched variable with the
// same command used for reading variables (0x83). Replies to read requests
// have the same shape, so both are decoded into Frame and told apart by
// address.
//
// Producer: host (page-set, writes, read requests), panel (touch reports,
// read replies).
// Consumer: the other side.
