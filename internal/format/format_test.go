package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackTagRoundTrip(t *testing.T) {
	for _, tt := range []TrackType{TrackTypeFSR, TrackTypeVSR, TrackTypeAnnotation, TrackTypeUTC} {
		for _, k := range []ChunkKind{ChunkKindDef, ChunkKindHead, ChunkKindData, ChunkKindIndex, ChunkKindSummary} {
			tag := TrackTag(tt, k)
			require.True(t, IsTrackTag(tag))
			require.Equal(t, tt, TrackTypeOf(tag))
			require.Equal(t, k, ChunkKindOf(tag))
		}
	}
}

func TestIsTrackTagRejectsNonTrackTags(t *testing.T) {
	require.False(t, IsTrackTag(TagUserData))
	require.False(t, IsTrackTag(TagSourceDef))
	require.False(t, IsTrackTag(TagSignalDef))
}

func TestChunkMetaSignalRoundTrip(t *testing.T) {
	meta := ChunkMetaSignal(300, 5)
	id, level := SplitChunkMetaSignal(meta)
	require.Equal(t, uint16(300), id)
	require.Equal(t, uint8(5), level)
}

func TestChunkMetaSignalMasksOutOfRangeID(t *testing.T) {
	// id must fit in 12 bits; a caller passing more is masked, not rejected
	// (callers are expected to have already range-checked against
	// SignalCount/SourceCount before reaching this encoding step).
	meta := ChunkMetaSignal(0xffff, 0)
	id, _ := SplitChunkMetaSignal(meta)
	require.Equal(t, uint16(0x0fff), id)
}

func TestChunkMetaUserDataRoundTrip(t *testing.T) {
	meta := ChunkMetaUserData(123, StorageTypeJSON)
	field, st := SplitChunkMetaUserData(meta)
	require.Equal(t, uint16(123), field)
	require.Equal(t, StorageTypeJSON, st)
}

func TestTrackTypeStringCoversAllValues(t *testing.T) {
	require.Equal(t, "fsr", TrackTypeFSR.String())
	require.Equal(t, "vsr", TrackTypeVSR.String())
	require.Equal(t, "annotation", TrackTypeAnnotation.String())
	require.Equal(t, "utc", TrackTypeUTC.String())
	require.Equal(t, "unknown", TrackType(99).String())
}
