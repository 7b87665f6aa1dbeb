package raw

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/jls-format/jls/internal/format"
)

// HeaderSize is the on-disk size of a chunk header in bytes:
// item_next(8) + item_prev(8) + tag(1) + rsv0_u8(1) + chunk_meta(2) +
// payload_length(4) + payload_prev_length(4) + header_crc(4) = 32,
// followed by the payload and its own payload_crc(4).
const HeaderSize = 32

// Header is the fixed-size header every chunk carries.
type Header struct {
	ItemNext          uint64
	ItemPrev          uint64
	Tag               format.Tag
	ChunkMeta         uint16
	PayloadLength     uint32
	PayloadPrevLength uint32
}

// marshal encodes the header (without its trailing CRC) into b, which
// must be at least HeaderSize-4 bytes. Returns the CRC32 of the encoded
// bytes so callers can append it.
func (h Header) marshal(b []byte) uint32 {
	binary.LittleEndian.PutUint64(b[0:8], h.ItemNext)
	binary.LittleEndian.PutUint64(b[8:16], h.ItemPrev)
	b[16] = byte(h.Tag)
	b[17] = 0 // rsv0_u8
	binary.LittleEndian.PutUint16(b[18:20], h.ChunkMeta)
	binary.LittleEndian.PutUint32(b[20:24], h.PayloadLength)
	binary.LittleEndian.PutUint32(b[24:28], h.PayloadPrevLength)
	return crc32.ChecksumIEEE(b[0:28])
}

func unmarshalHeader(b []byte) (Header, uint32) {
	var h Header
	h.ItemNext = binary.LittleEndian.Uint64(b[0:8])
	h.ItemPrev = binary.LittleEndian.Uint64(b[8:16])
	h.Tag = format.Tag(b[16])
	h.ChunkMeta = binary.LittleEndian.Uint16(b[18:20])
	h.PayloadLength = binary.LittleEndian.Uint32(b[20:24])
	h.PayloadPrevLength = binary.LittleEndian.Uint32(b[24:28])
	crc := binary.LittleEndian.Uint32(b[28:32])
	return h, crc
}

func payloadCRC(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

func crc32IEEE(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
