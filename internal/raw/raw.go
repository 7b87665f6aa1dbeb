// Package raw implements the JLS chunk layer: the fixed file header, the
// chunk header/payload framing with CRC32 integrity, and positional I/O
// over a single open file. It does not interpret chunk tags or maintain
// any linked list — that is the writer's and reader's job.
//
// Write mode appends through a bufio.Writer over a plain *os.File and
// uses positional WriteAt calls for in-place patches, since the writer
// must patch already-written header/payload regions (the MRA "item_next"
// patch, and the per-track head rewrite) without disturbing its append
// position. Read mode is backed by
// github.com/edsrzf/mmap-go, the library the teacher's own chunk and index
// readers (vendor/github.com/fabxc/tsdb) use for random access over an
// immutable file — this format's reader never appends, only seeks and
// re-reads by offset, which is exactly what a read-only mmap is for.
package raw

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/oklog/ulid"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

// Mode selects whether a File is opened for append-writing or for
// read-only random access.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// FileHeaderSize is the size of the fixed prefix every JLS file starts with:
// 8-byte magic + 2-byte version + 6 reserved bytes + 16-byte ULID + 4-byte CRC32.
const FileHeaderSize = 8 + 2 + 6 + 16 + 4

// File is the raw chunk layer's handle on an open JLS file.
type File struct {
	mode Mode

	// write-mode state
	f   *os.File
	bw  *bufio.Writer
	pos int64

	// read-mode state
	mm  mmap.MMap
	rat int64
}

// Open opens path in the given mode. In ModeWrite it creates (or
// truncates) the file and writes the file header at offset 0. In
// ModeRead it memory-maps the file and validates the header, failing
// with ErrIO if the magic does not match.
func Open(path string, mode Mode) (*File, error) {
	switch mode {
	case ModeWrite:
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", jlserrors.ErrIO, path, err)
		}
		rf := &File{mode: ModeWrite, f: f, bw: bufio.NewWriterSize(f, 1<<20)}
		if err := rf.writeFileHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return rf, nil
	case ModeRead:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", jlserrors.ErrIO, path, err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", jlserrors.ErrIO, path, err)
		}
		if info.Size() < FileHeaderSize {
			return nil, fmt.Errorf("%w: %s too small to hold a file header", jlserrors.ErrIO, path)
		}
		mm, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: mmap %s: %v", jlserrors.ErrIO, path, err)
		}
		rf := &File{mode: ModeRead, mm: mm}
		if err := rf.validateFileHeader(); err != nil {
			mm.Unmap()
			return nil, err
		}
		rf.rat = FileHeaderSize
		return rf, nil
	default:
		return nil, fmt.Errorf("%w: invalid mode", jlserrors.ErrParameterInvalid)
	}
}

func (f *File) writeFileHeader() error {
	var buf [FileHeaderSize]byte
	copy(buf[0:8], format.FileMagic[:])
	binary.LittleEndian.PutUint16(buf[8:10], format.FileVersion)
	// buf[10:16] reserved, left zero
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	copy(buf[16:32], id[:])
	crc := crc32IEEE(buf[0:32])
	binary.LittleEndian.PutUint32(buf[32:36], crc)
	n, err := f.bw.Write(buf[:])
	if err != nil {
		return fmt.Errorf("%w: write file header: %v", jlserrors.ErrIO, err)
	}
	f.pos += int64(n)
	return nil
}

func (f *File) validateFileHeader() error {
	if len(f.mm) < FileHeaderSize {
		return fmt.Errorf("%w: truncated file header", jlserrors.ErrIO)
	}
	if !equalBytes(f.mm[0:8], format.FileMagic[:]) {
		return fmt.Errorf("%w: bad magic", jlserrors.ErrIO)
	}
	return nil
}

// FileID returns the ULID stamped into the file header at creation time.
func (f *File) FileID() (ulid.ULID, error) {
	var id ulid.ULID
	if f.mode != ModeRead {
		return id, fmt.Errorf("%w: FileID requires read mode", jlserrors.ErrParameterInvalid)
	}
	copy(id[:], f.mm[16:32])
	return id, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tell returns the current chunk-stream position (relative to the start
// of the file, i.e. including the file header).
func (f *File) Tell() int64 {
	if f.mode == ModeWrite {
		return f.pos
	}
	return f.rat
}

// Seek repositions the read cursor (read mode only; the writer only ever
// appends, plus targeted in-place patches that do not move Tell()).
func (f *File) Seek(offset int64) error {
	if f.mode != ModeRead {
		return fmt.Errorf("%w: Seek is read-mode only", jlserrors.ErrParameterInvalid)
	}
	if offset < FileHeaderSize || offset > int64(len(f.mm)) {
		return fmt.Errorf("%w: seek offset %d out of range", jlserrors.ErrParameterInvalid, offset)
	}
	f.rat = offset
	return nil
}

// Write serializes header and payload, fills in both CRCs, and appends
// them contiguously at the current write position. Returns the offset at
// which the chunk started.
func (f *File) Write(h Header, payload []byte) (int64, error) {
	if f.mode != ModeWrite {
		return 0, fmt.Errorf("%w: Write is write-mode only", jlserrors.ErrParameterInvalid)
	}
	h.PayloadLength = uint32(len(payload))
	offset := f.pos

	var hb [HeaderSize]byte
	crc := h.marshal(hb[0:28])
	binary.LittleEndian.PutUint32(hb[28:32], crc)

	if _, err := f.bw.Write(hb[:]); err != nil {
		return 0, fmt.Errorf("%w: write chunk header: %v", jlserrors.ErrIO, err)
	}
	f.pos += HeaderSize
	if len(payload) > 0 {
		if _, err := f.bw.Write(payload); err != nil {
			return 0, fmt.Errorf("%w: write chunk payload: %v", jlserrors.ErrIO, err)
		}
		f.pos += int64(len(payload))
	}
	var pcrc [4]byte
	binary.LittleEndian.PutUint32(pcrc[:], payloadCRC(payload))
	if _, err := f.bw.Write(pcrc[:]); err != nil {
		return 0, fmt.Errorf("%w: write payload crc: %v", jlserrors.ErrIO, err)
	}
	f.pos += 4
	return offset, nil
}

// WriteHeaderInPlace overwrites only the header region of the chunk at
// offset, recomputing its CRC. The writer's append position is
// unaffected: this uses positional I/O rather than disturbing Tell().
func (f *File) WriteHeaderInPlace(offset int64, h Header) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: WriteHeaderInPlace is write-mode only", jlserrors.ErrParameterInvalid)
	}
	if err := f.bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush before patch: %v", jlserrors.ErrIO, err)
	}
	var hb [HeaderSize]byte
	crc := h.marshal(hb[0:28])
	binary.LittleEndian.PutUint32(hb[28:32], crc)
	if _, err := f.f.WriteAt(hb[:], offset); err != nil {
		return fmt.Errorf("%w: patch chunk header at %d: %v", jlserrors.ErrIO, offset, err)
	}
	return nil
}

// WritePayloadInPlace overwrites the payload region of the chunk whose
// header starts at offset, recomputing the payload CRC in place. The
// caller is responsible for ensuring the new payload is the same length
// as the chunk's declared payload_length.
func (f *File) WritePayloadInPlace(offset int64, payload []byte) error {
	if f.mode != ModeWrite {
		return fmt.Errorf("%w: WritePayloadInPlace is write-mode only", jlserrors.ErrParameterInvalid)
	}
	if err := f.bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush before patch: %v", jlserrors.ErrIO, err)
	}
	if _, err := f.f.WriteAt(payload, offset+HeaderSize); err != nil {
		return fmt.Errorf("%w: patch chunk payload at %d: %v", jlserrors.ErrIO, offset, err)
	}
	var pcrc [4]byte
	binary.LittleEndian.PutUint32(pcrc[:], payloadCRC(payload))
	if _, err := f.f.WriteAt(pcrc[:], offset+HeaderSize+int64(len(payload))); err != nil {
		return fmt.Errorf("%w: patch payload crc at %d: %v", jlserrors.ErrIO, offset, err)
	}
	return nil
}

// Read reads the chunk header at the current position. If the payload
// fits within payloadCap, it is copied into a freshly-allocated slice,
// both CRCs are validated, and the cursor advances past the chunk. If
// the payload does not fit, the cursor is left at the chunk start and a
// *jlserrors.TooBigError is returned. End of stream returns ErrEmpty.
func (f *File) Read(payloadCap int) (Header, []byte, error) {
	if f.mode != ModeRead {
		return Header{}, nil, fmt.Errorf("%w: Read is read-mode only", jlserrors.ErrParameterInvalid)
	}
	start := f.rat
	if start+HeaderSize > int64(len(f.mm)) {
		return Header{}, nil, jlserrors.ErrEmpty
	}
	hb := f.mm[start : start+HeaderSize]
	h, wantCRC := unmarshalHeader(hb)
	gotCRC := crc32IEEE(hb[0:28])
	if gotCRC != wantCRC {
		return Header{}, nil, fmt.Errorf("%w: chunk at %d", jlserrors.ErrCrcHeader, start)
	}
	if int(h.PayloadLength) > payloadCap {
		return Header{}, nil, &jlserrors.TooBigError{Required: h.PayloadLength}
	}
	payloadStart := start + HeaderSize
	payloadEnd := payloadStart + int64(h.PayloadLength)
	crcEnd := payloadEnd + 4
	if crcEnd > int64(len(f.mm)) {
		return Header{}, nil, jlserrors.ErrEmpty
	}
	payload := make([]byte, h.PayloadLength)
	copy(payload, f.mm[payloadStart:payloadEnd])
	wantPayloadCRC := binary.LittleEndian.Uint32(f.mm[payloadEnd:crcEnd])
	if payloadCRC(payload) != wantPayloadCRC {
		return Header{}, nil, fmt.Errorf("%w: chunk at %d", jlserrors.ErrCrcPayload, start)
	}
	f.rat = crcEnd
	return h, payload, nil
}

// Close flushes (write mode) or unmaps (read mode) and closes the
// underlying file.
func (f *File) Close() error {
	switch f.mode {
	case ModeWrite:
		if err := f.bw.Flush(); err != nil {
			f.f.Close()
			return fmt.Errorf("%w: flush on close: %v", jlserrors.ErrIO, err)
		}
		if err := f.f.Close(); err != nil {
			return fmt.Errorf("%w: close: %v", jlserrors.ErrIO, err)
		}
		return nil
	case ModeRead:
		if err := f.mm.Unmap(); err != nil {
			return fmt.Errorf("%w: unmap: %v", jlserrors.ErrIO, err)
		}
		return nil
	}
	return nil
}
