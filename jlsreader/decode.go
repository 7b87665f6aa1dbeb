package jlsreader

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jls-format/jls/jlserrors"
)

// payloadReader is a small bounds-checked cursor over one chunk's
// payload bytes, the decode-side counterpart of jlswriter's
// payloadBuilder.
type payloadReader struct {
	buf []byte
	pos int
}

func newPayloadReader(buf []byte) *payloadReader {
	return &payloadReader{buf: buf}
}

func (p *payloadReader) need(n int) error {
	if p.pos+n > len(p.buf) {
		return fmt.Errorf("%w: payload truncated, need %d more bytes at offset %d", jlserrors.ErrIO, n, p.pos)
	}
	return nil
}

func (p *payloadReader) skip(n int) error {
	if err := p.need(n); err != nil {
		return err
	}
	p.pos += n
	return nil
}

func (p *payloadReader) u8() (uint8, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.buf[p.pos]
	p.pos++
	return v, nil
}

func (p *payloadReader) u32() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos : p.pos+4])
	p.pos += 4
	return v, nil
}

func (p *payloadReader) u64() (uint64, error) {
	if err := p.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos : p.pos+8])
	p.pos += 8
	return v, nil
}

func (p *payloadReader) i64() (int64, error) {
	v, err := p.u64()
	return int64(v), err
}

func (p *payloadReader) f32() (float32, error) {
	v, err := p.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// str reads a {bytes..., 0x00, [0x1F]} terminated string: the nul ends
// the string itself, and a following 0x1F is consumed if present
// (tolerant of its absence, per the format's forward-compatibility
// rule).
func (p *payloadReader) str() (string, error) {
	start := p.pos
	for {
		if p.pos >= len(p.buf) {
			return "", fmt.Errorf("%w: unterminated string in payload", jlserrors.ErrIO)
		}
		if p.buf[p.pos] == 0x00 {
			s := string(p.buf[start:p.pos])
			p.pos++
			if p.pos < len(p.buf) && p.buf[p.pos] == 0x1f {
				p.pos++
			}
			return s, nil
		}
		p.pos++
	}
}

func (p *payloadReader) remaining() int {
	return len(p.buf) - p.pos
}
