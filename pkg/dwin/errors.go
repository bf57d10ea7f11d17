package dwin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAFrame indicates the bytes don't form a panel frame.
	ErrNotAFrame = errors.New("not a frame")
	// ErrShortFrame indicates fewer bytes than the minimum frame.
	ErrShortFrame = fmt.Errorf("%w: shorter than %d bytes", ErrNotAFrame, MinFrameLen)
	// ErrLengthMismatch indicates the length field disagrees with the bytes present.
	ErrLengthMismatch = fmt.Errorf("%w: length mismatch", ErrNotAFrame)
	// ErrPayloadTooLarge indicates the payload exceeds MaxPayloadLen.
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", MaxPayloadLen)
	// ErrAmbiguousPayload indicates an unterminated write payload ending with
	// the terminator bytes, which can't be decoded back unchanged.
	ErrAmbiguousPayload = errors.New("unterminated payload ends with terminator")
	// ErrUnexpectedTerminator indicates a terminator on a non-write command.
	ErrUnexpectedTerminator = errors.New("terminator only allowed on writes")
)
