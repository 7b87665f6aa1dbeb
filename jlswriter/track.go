package jlswriter

import (
	"encoding/binary"
	"fmt"

	"github.com/jls-format/jls/internal/format"
)

// trackState is the writer's live state for one (signal, track_type)
// pair: the def/head chunk offsets, the head chunk's current per-level
// tail-offset vector, and the MRA handles for that track's data/summary/
// index lists at every summary level.
type trackState struct {
	trackType format.TrackType

	defOffset  int64
	headOffset int64
	headLevels [format.SummaryLevelCount]uint64

	dataMRA    mraHandle
	summaryMRA [format.SummaryLevelCount + 1]mraHandle
	indexMRA   [format.SummaryLevelCount + 1]mraHandle
}

// tracksForSignalType returns the track types a signal of the given type
// owns: FSR signals carry FSR+ANNOTATION+UTC tracks, VSR signals carry
// VSR+ANNOTATION.
func tracksForSignalType(st format.SignalType) []format.TrackType {
	switch st {
	case format.SignalTypeFSR:
		return []format.TrackType{format.TrackTypeFSR, format.TrackTypeAnnotation, format.TrackTypeUTC}
	case format.SignalTypeVSR:
		return []format.TrackType{format.TrackTypeVSR, format.TrackTypeAnnotation}
	default:
		return nil
	}
}

// defineTrack writes a track's def chunk (empty payload; the track's
// parameters live on the owning signal_def) and its head chunk (a
// zeroed 8-offset vector), threading both into the shared signal list.
func (w *Writer) defineTrack(signalID uint16, tt format.TrackType) (*trackState, error) {
	ts := &trackState{trackType: tt}

	defTag := format.TrackTag(tt, format.ChunkKindDef)
	meta := format.ChunkMetaSignal(signalID, 0)
	defOffset, err := w.appendChunk(&w.signalListMRA, defTag, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("write track def (signal %d, track %v): %w", signalID, tt, err)
	}
	ts.defOffset = defOffset

	headTag := format.TrackTag(tt, format.ChunkKindHead)
	headOffset, err := w.appendChunk(&w.signalListMRA, headTag, meta, marshalHeadLevels(ts.headLevels))
	if err != nil {
		return nil, fmt.Errorf("write track head (signal %d, track %v): %w", signalID, tt, err)
	}
	ts.headOffset = headOffset
	return ts, nil
}

// patchHeadLevel rewrites the head chunk's fixed 64-byte payload in
// place to reflect a new tail offset at summary level L (1-based;
// index is L-1). On FSR tracks the head vector holds only summary
// levels, never the level-0 data chunk list; the ANNOTATION and UTC
// tracks, which have no summary levels, store their data list's tail in
// index 0. This is the only payload mutation a head chunk ever undergoes.
func (w *Writer) patchHeadLevel(ts *trackState, index int, offset int64) error {
	ts.headLevels[index] = uint64(offset)
	return w.raw.WritePayloadInPlace(ts.headOffset, marshalHeadLevels(ts.headLevels))
}

func marshalHeadLevels(levels [format.SummaryLevelCount]uint64) []byte {
	b := make([]byte, format.SummaryLevelCount*8)
	for i, v := range levels {
		binary.LittleEndian.PutUint64(b[i*8:i*8+8], v)
	}
	return b
}
