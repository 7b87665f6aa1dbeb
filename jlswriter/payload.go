package jlswriter

import (
	"encoding/binary"
	"math"

	"github.com/jls-format/jls/internal/format"
)

// payloadBuilder is a small append-only byte buffer with the
// little-endian primitives every chunk payload in this format needs.
// Grounded on the teacher's wal.go record-encoding helpers (encbuf-style
// append-and-grow rather than a fixed scratch buffer with overrun checks,
// since Go slices grow safely where the C source's scratch buffer could
// overrun into NotEnoughMemory).
type payloadBuilder struct {
	buf []byte
}

func newPayloadBuilder() *payloadBuilder {
	return &payloadBuilder{buf: make([]byte, 0, 256)}
}

func (p *payloadBuilder) bytes() []byte { return p.buf }

func (p *payloadBuilder) u8(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *payloadBuilder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *payloadBuilder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *payloadBuilder) i64(v int64) {
	p.u64(uint64(v))
}

func (p *payloadBuilder) f32(v float32) {
	p.u32(math.Float32bits(v))
}

// str writes a raw string's bytes followed by the format's
// {0x00, 0x1F} terminator.
func (p *payloadBuilder) str(s string) {
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, format.StringTerminator[:]...)
}

// reserve appends n zero bytes (padding/reserved fields).
func (p *payloadBuilder) reserve(n int) {
	for i := 0; i < n; i++ {
		p.buf = append(p.buf, 0)
	}
}
