// Package format holds the constants and small encodings shared by the
// raw chunk layer, the writer, and the reader: chunk tags, chunk_meta bit
// layout, storage types, and the fixed counts the format reserves for
// sources, signals, and summary levels.
package format

// FileMagic is the fixed byte sequence every JLS file starts with,
// modeled on the 4-byte-magic-plus-version-flag convention the teacher's
// segment and index files use (MagicSeries/MagicIndex in
// vendor/github.com/fabxc/tsdb).
var FileMagic = [8]byte{'J', 'L', 'S', 0x00, '\r', '\n', 0x1a, '\n'}

// FileVersion is the format version this module reads and writes.
const FileVersion uint16 = 1

const (
	// SourceCount is the number of source ids the format reserves,
	// id 0 is the implicit "global annotation" source.
	SourceCount = 256
	// SignalCount is the number of signal ids the format reserves,
	// id 0 is the implicit "global VSR annotation" signal.
	SignalCount = 256
	// SummaryLevelCount is the number of decimation levels a track's
	// head chunk tracks tail offsets for.
	SummaryLevelCount = 8

	// SummaryDecimateFactorMin is the minimum summary_decimate_factor;
	// the writer silently clamps up to this value.
	SummaryDecimateFactorMin = 10
	// EntriesPerSummaryMin is the minimum entries_per_summary; the
	// writer silently clamps up to this value.
	EntriesPerSummaryMin = 1000
)

// Tag identifies a chunk's kind.
type Tag uint8

const (
	TagUserData  Tag = 0x01
	TagSourceDef Tag = 0x02
	TagSignalDef Tag = 0x03
)

// TrackType identifies which of a signal's (up to four) tracks a track
// chunk belongs to.
type TrackType uint8

const (
	TrackTypeFSR        TrackType = 0
	TrackTypeVSR        TrackType = 1
	TrackTypeAnnotation TrackType = 2
	TrackTypeUTC        TrackType = 3
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeFSR:
		return "fsr"
	case TrackTypeVSR:
		return "vsr"
	case TrackTypeAnnotation:
		return "annotation"
	case TrackTypeUTC:
		return "utc"
	default:
		return "unknown"
	}
}

// ChunkKind identifies the role a track chunk plays within its track.
type ChunkKind uint8

const (
	ChunkKindDef     ChunkKind = 0
	ChunkKindHead    ChunkKind = 1
	ChunkKindData    ChunkKind = 2
	ChunkKindIndex   ChunkKind = 3
	ChunkKindSummary ChunkKind = 4
)

// TrackTag builds the tag byte for a track chunk: 0x20 | (track_type<<3) | chunk_kind.
func TrackTag(t TrackType, k ChunkKind) Tag {
	return Tag(0x20 | (uint8(t)&0x03)<<3 | uint8(k)&0x07)
}

// IsTrackTag reports whether tag belongs to the track-chunk family.
func IsTrackTag(tag Tag) bool {
	return uint8(tag)&0x20 != 0
}

// TrackTypeOf extracts the track_type field from a track chunk tag.
func TrackTypeOf(tag Tag) TrackType {
	return TrackType((uint8(tag) >> 3) & 0x03)
}

// ChunkKindOf extracts the chunk_kind field from a track chunk tag.
func ChunkKindOf(tag Tag) ChunkKind {
	return ChunkKind(uint8(tag) & 0x07)
}

// SignalType distinguishes fixed-sample-rate from variable-sample-rate signals.
type SignalType uint8

const (
	SignalTypeFSR SignalType = 0
	SignalTypeVSR SignalType = 1
)

// DataType identifies the sample representation. Only F32 is implemented.
type DataType uint32

const (
	DataTypeF32 DataType = 0
)

// StorageType identifies how a user-data or annotation payload is encoded.
type StorageType uint8

const (
	StorageTypeInvalid StorageType = 0
	StorageTypeBinary  StorageType = 1
	StorageTypeString  StorageType = 2
	StorageTypeJSON    StorageType = 3
)

// AnnotationType is an opaque, caller-defined byte tag for annotation records.
type AnnotationType uint8

// ChunkMetaSignal packs a signal or source id into chunk_meta bits 0-11,
// with an optional summary level in bits 12-15.
func ChunkMetaSignal(id uint16, level uint8) uint16 {
	return (id & 0x0fff) | (uint16(level)&0x0f)<<12
}

// SplitChunkMetaSignal reverses ChunkMetaSignal.
func SplitChunkMetaSignal(meta uint16) (id uint16, level uint8) {
	return meta & 0x0fff, uint8(meta>>12) & 0x0f
}

// ChunkMetaUserData packs a user-data opaque 12-bit field and storage type.
func ChunkMetaUserData(userField uint16, st StorageType) uint16 {
	return (userField & 0x0fff) | (uint16(st)&0x0f)<<12
}

// SplitChunkMetaUserData reverses ChunkMetaUserData.
func SplitChunkMetaUserData(meta uint16) (userField uint16, st StorageType) {
	return meta & 0x0fff, StorageType(uint8(meta>>12) & 0x0f)
}

// StringTerminator is the two-byte sequence that ends every string field
// in a chunk payload: a nul followed by a unit-separator.
var StringTerminator = [2]byte{0x00, 0x1f}
