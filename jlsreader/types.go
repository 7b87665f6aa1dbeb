package jlsreader

import "github.com/jls-format/jls/internal/format"

// Source mirrors jlswriter.SourceDef as observed by a reader.
type Source struct {
	SourceID     uint16
	Name         string
	Vendor       string
	Model        string
	Version      string
	SerialNumber string
}

// Signal mirrors jlswriter.SignalDef as observed by a reader.
type Signal struct {
	SignalID              uint16
	SourceID              uint16
	SignalType            format.SignalType
	DataType              format.DataType
	SampleRate            uint32
	SamplesPerData        uint32
	SampleDecimateFactor  uint32
	EntriesPerSummary     uint32
	SummaryDecimateFactor uint32
	UTCRateAuto           uint32
	Name                  string
	SIUnits               string
}

// UserData is one user-data record, valid until the next reader call
// that touches the shared payload buffer.
type UserData struct {
	UserField   uint16
	StorageType format.StorageType
	Data        []byte
}

// Annotation is one materialized ANNOTATION-track record.
type Annotation struct {
	Timestamp      int64
	AnnotationType format.AnnotationType
	StorageType    format.StorageType
	Data           []byte
}

// Statistics is one (min, max, mean, variance) tuple returned by
// FSRF32Statistics, covering Increment consecutive samples starting at
// SampleID.
type Statistics struct {
	SampleID uint64
	Min      float32
	Max      float32
	Mean     float32
	Variance float32
}

// trackState is the reader's live view of one (signal, track_type)
// pair, populated during the initial signal-list scan.
type trackState struct {
	trackType  format.TrackType
	defOffset  int64
	headOffset int64
	headLevels [format.SummaryLevelCount]uint64
}

// signalState bundles a Signal with its tracks.
type signalState struct {
	signal Signal
	tracks map[format.TrackType]*trackState
}
