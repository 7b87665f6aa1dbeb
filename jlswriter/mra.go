package jlswriter

import (
	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
)

// mraHandle is the writer's handle to one logical list's Most-Recently-
// Added chunk: the append-with-patch primitive every logical list in this
// format shares (source list, signal list, user-data list, and one per
// (signal_id, track_type, chunk_kind)).
type mraHandle struct {
	offset int64
	header raw.Header
	valid  bool
}

// appendChunk implements the MRA patch protocol: write the new chunk with
// item_prev pointing at the current MRA, then patch the old MRA's
// item_next in place to point at the new chunk, which becomes the new
// MRA. Until the patch lands, a reader walking this list still sees the
// old tail — there is no reader-visible torn state.
func (w *Writer) appendChunk(mra *mraHandle, tag format.Tag, chunkMeta uint16, payload []byte) (int64, error) {
	h := raw.Header{
		Tag:               tag,
		ChunkMeta:         chunkMeta,
		PayloadPrevLength: w.lastPayloadLen,
	}
	if mra.valid {
		h.ItemPrev = uint64(mra.offset)
	}
	offset, err := w.raw.Write(h, payload)
	if err != nil {
		return 0, err
	}
	w.lastPayloadLen = uint32(len(payload))
	h.PayloadLength = uint32(len(payload))

	if mra.valid {
		prev := mra.header
		prev.ItemNext = uint64(offset)
		if err := w.raw.WriteHeaderInPlace(mra.offset, prev); err != nil {
			return 0, err
		}
	}
	mra.offset = offset
	mra.header = h
	mra.valid = true
	return offset, nil
}
