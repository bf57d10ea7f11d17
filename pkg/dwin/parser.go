package dwin

import "bytes"

var header = []byte{Header0, Header1}

// Parser reassembles frames from a byte stream.
// Bytes before a header are skipped, and a frame with an impossible
// length is dropped by sliding one byte and searching again.
type Parser struct {
	buf []byte

	// Discarded counts bytes skipped while searching for frames.
	Discarded int
}

// Reset drops buffered bytes.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Timeout drops a partial frame after the link went idle and returns
// the number of bytes dropped.
func (p *Parser) Timeout() int {
	n := len(p.buf)
	p.skip(n)
	return n
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Feed consumes bytes and returns complete frames in arrival order.
func (p *Parser) Feed(data []byte) (frames []*Frame) {
	p.buf = append(p.buf, data...)
	for {
		pos := bytes.Index(p.buf, header)
		if pos < 0 {
			// a trailing first header byte may start the next frame.
			keep := 0
			if n := len(p.buf); n > 0 && p.buf[n-1] == Header0 {
				keep = 1
			}
			p.skip(len(p.buf) - keep)
			break
		}
		p.skip(pos)
		if len(p.buf) < 3 {
			break
		}
		l := int(p.buf[2])
		if l < overhead || l > maxLenField {
			p.skip(1)
			continue
		}
		total := l + 3
		if len(p.buf) < total {
			break
		}
		f, err := Decode(p.buf[:total])
		if err != nil {
			p.skip(1)
			continue
		}
		frames = append(frames, f)
		p.consume(total)
	}
	p.compact()
	return
}

func (p *Parser) skip(n int) {
	p.Discarded += n
	p.consume(n)
}

func (p *Parser) consume(n int) {
	p.buf = p.buf[n:]
}

// compact moves the pending bytes to the front so the buffer doesn't
// grow with the stream.
func (p *Parser) compact() {
	if cap(p.buf) > 4*maxLenField {
		p.buf = append([]byte(nil), p.buf...)
	}
}
