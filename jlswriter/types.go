package jlswriter

import "github.com/jls-format/jls/internal/format"

// SourceDef describes one data source (an instrument, a file, a process)
// that owns zero or more signals. SourceID 0 is reserved and defined
// automatically by Open as the implicit "global annotation" source.
type SourceDef struct {
	SourceID     uint16
	Name         string
	Vendor       string
	Model        string
	Version      string
	SerialNumber string
}

// SignalDef describes one signal: an FSR (fixed-sample-rate) or VSR
// (variable-sample-rate) stream of samples, plus the knobs that drive the
// writer's decimation cascade. SignalID 0 is reserved and defined
// automatically by Open as the implicit "global VSR annotation" signal.
type SignalDef struct {
	SignalID uint16
	SourceID uint16

	SignalType format.SignalType
	DataType   format.DataType

	// SampleRate is the sample rate in Hz. Required (nonzero) for FSR
	// signals; forced to zero for VSR signals.
	SampleRate uint32

	// SamplesPerData is the number of raw samples buffered per
	// level-0 data chunk.
	SamplesPerData uint32

	// SampleDecimateFactor is the number of raw samples a single
	// level-1 summary entry covers.
	SampleDecimateFactor uint32

	// EntriesPerSummary is the number of entries accumulated at any
	// cascade level before a summary+index chunk pair is emitted.
	// Clamped up to format.EntriesPerSummaryMin if lower.
	EntriesPerSummary uint32

	// SummaryDecimateFactor is the number of level-(L-1) entries a
	// single level-L (L>1) summary entry covers. Clamped up to
	// format.SummaryDecimateFactorMin if lower.
	SummaryDecimateFactor uint32

	// UTCRateAuto, when nonzero, is reserved for future automatic UTC
	// correlation sampling; this module does not implement it (callers
	// drive FSRUTC explicitly).
	UTCRateAuto uint32

	Name    string
	SIUnits string
}

func sourceZero() SourceDef {
	return SourceDef{
		SourceID:     0,
		Name:         "global_annotation_source",
		Vendor:       "None",
		Model:        "None",
		Version:      "1.0.0",
		SerialNumber: "None",
	}
}

func signalZero() SignalDef {
	return SignalDef{
		SignalID:              0,
		SourceID:              0,
		SignalType:            format.SignalTypeVSR,
		DataType:              format.DataTypeF32,
		SampleRate:            0,
		SamplesPerData:        0,
		SampleDecimateFactor:  10,
		EntriesPerSummary:     format.EntriesPerSummaryMin,
		SummaryDecimateFactor: 100,
		UTCRateAuto:           0,
		Name:                  "global_annotation_signal",
		SIUnits:               "",
	}
}
