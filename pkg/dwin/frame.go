package dwin

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// Frame header and commands.
const (
	Header0 byte = 0x5a
	Header1 byte = 0xa5

	// CmdPageSet switches the displayed page.
	CmdPageSet byte = 0x80
	// CmdWrite writes text or a word into a variable.
	CmdWrite byte = 0x82
	// CmdRead requests a variable, the panel replies with the same command.
	// Touch reports are uploaded with this command as well.
	CmdRead byte = 0x83
)

const (
	// MaxPayloadLen is the maximum payload size, terminator excluded.
	MaxPayloadLen = 64
	// MinFrameLen is header, length, command and address.
	MinFrameLen = 6
	// PageAddress is the register holding the current page.
	PageAddress uint16 = 0x0300

	terminator byte = 0xff
	// command + address
	overhead = 3
	// longest value the length field may carry
	maxLenField = overhead + MaxPayloadLen + 2
)

// Frame is a decoded panel frame.
type Frame struct {
	Command    byte
	Address    uint16
	Payload    []byte
	Terminated bool
}

// PageFrame builds a page-set frame.
func PageFrame(page byte) *Frame {
	return &Frame{Command: CmdPageSet, Address: PageAddress, Payload: []byte{page}}
}

// TextFrame builds a terminated text write. Text longer than MaxPayloadLen
// is truncated on a rune boundary.
func TextFrame(addr uint16, text string) *Frame {
	return &Frame{
		Command:    CmdWrite,
		Address:    addr,
		Payload:    []byte(TruncateText(text, MaxPayloadLen)),
		Terminated: true,
	}
}

// WordFrame builds a 16-bit write, used for icons and numeric variables.
func WordFrame(addr uint16, val uint16) *Frame {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, val)
	return &Frame{Command: CmdWrite, Address: addr, Payload: payload}
}

// ReadFrame builds a request reading words from addr.
func ReadFrame(addr uint16, words byte) *Frame {
	return &Frame{Command: CmdRead, Address: addr, Payload: []byte{words}}
}

// ReadReply builds the panel's answer carrying one word, which is also
// the shape of a touch report.
func ReadReply(addr uint16, val uint16) *Frame {
	return &Frame{Command: CmdRead, Address: addr, Payload: []byte{1, byte(val >> 8), byte(val)}}
}

// TruncateText cuts s to at most max bytes without splitting a rune.
func TruncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (f *Frame) validate() error {
	if len(f.Payload) > MaxPayloadLen {
		return ErrPayloadTooLarge
	}
	if f.Terminated {
		if f.Command != CmdWrite {
			return ErrUnexpectedTerminator
		}
	} else if f.Command == CmdWrite && hasTerminator(f.Payload) {
		return ErrAmbiguousPayload
	}
	return nil
}

// Len returns the encoded size.
func (f *Frame) Len() int {
	return MinFrameLen + f.tailLen()
}

func (f *Frame) tailLen() int {
	n := len(f.Payload)
	if f.Terminated {
		n += 2
	}
	return n
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	b := make([]byte, MinFrameLen, f.Len())
	b[0], b[1] = Header0, Header1
	b[2] = byte(overhead + f.tailLen())
	b[3] = f.Command
	binary.BigEndian.PutUint16(b[4:], f.Address)
	b = append(b, f.Payload...)
	if f.Terminated {
		b = append(b, terminator, terminator)
	}
	return b, nil
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Word returns the first big-endian word following the word count
// of a read reply or touch report.
func (f *Frame) Word() (uint16, bool) {
	if f.Command != CmdRead || len(f.Payload) < 3 {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.Payload[1:3]), true
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	s := fmt.Sprintf("cmd=%02x addr=%04x", f.Command, f.Address)
	if len(f.Payload) > 0 {
		s += fmt.Sprintf(" data=% x", f.Payload)
	}
	if f.Terminated {
		s += " +term"
	}
	return s
}

// Decode decodes exactly one frame from b.
func Decode(b []byte) (*Frame, error) {
	if len(b) < 2 || b[0] != Header0 || b[1] != Header1 {
		return nil, ErrNotAFrame
	}
	if len(b) < MinFrameLen {
		return nil, ErrShortFrame
	}
	if l := int(b[2]); l < overhead || l+3 != len(b) {
		return nil, ErrLengthMismatch
	}
	f := &Frame{
		Command: b[3],
		Address: binary.BigEndian.Uint16(b[4:6]),
	}
	payload := b[MinFrameLen:]
	if f.Command == CmdWrite && hasTerminator(payload) {
		payload, f.Terminated = payload[:len(payload)-2], true
	}
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	if len(payload) > 0 {
		f.Payload = append([]byte(nil), payload...)
	}
	return f, nil
}

func hasTerminator(p []byte) bool {
	n := len(p)
	return n >= 2 && p[n-2] == terminator && p[n-1] == terminator
}

// TouchEvent is a touch reported by the panel.
type TouchEvent struct {
	Command byte
	Address uint16
	Value   uint16
}

// TouchEventFrom extracts a TouchEvent from a touch report frame.
func TouchEventFrom(f *Frame) (ev TouchEvent, ok bool) {
	if f == nil || f.Command != CmdRead {
		return
	}
	ev.Command, ev.Address = f.Command, f.Address
	ev.Value, _ = f.Word()
	return ev, true
}
