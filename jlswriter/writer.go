// Package jlswriter implements the writer half of the JLS container
// format: source/signal definitions, buffered FSR sample ingestion
// driving a hierarchical decimation cascade, annotations, UTC
// correlation points, and user-data records.
package jlswriter

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
	"github.com/jls-format/jls/jlserrors"
)

// Options configures optional ambient behavior. The zero Options value
// is a usable default: a no-op logger and no metrics registration.
type Options struct {
	Logger     log.Logger
	Registerer prometheus.Registerer
}

// signalState is the writer's live bookkeeping for one defined signal:
// its definition, its tracks, and (for FSR signals) the decimation
// cascade buffering its samples.
type signalState struct {
	def     SignalDef
	tracks  map[format.TrackType]*trackState
	cascade *cascadeState
}

// Writer is a single open JLS file being written. It is not safe for
// concurrent use: the format is single-writer by design (see §5 of the
// container's concurrency model), and Writer enforces no internal
// locking.
type Writer struct {
	raw     *raw.File
	logger  log.Logger
	metrics *writerMetrics
	closed  atomic.Bool

	lastPayloadLen uint32

	sourceListMRA   mraHandle
	signalListMRA   mraHandle
	userDataListMRA mraHandle

	sources [format.SourceCount]*SourceDef
	signals [format.SignalCount]*signalState
}

// Open creates path, writes the file header and sentinel user-data
// chunk, and defines the reserved source 0 and signal 0.
func Open(path string, opts Options) (*Writer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	rf, err := raw.Open(path, raw.ModeWrite)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		raw:     rf,
		logger:  logger,
		metrics: newWriterMetrics(opts.Registerer),
	}

	sentinelMeta := format.ChunkMetaUserData(0, format.StorageTypeInvalid)
	if _, err := w.appendChunk(&w.userDataListMRA, format.TagUserData, sentinelMeta, nil); err != nil {
		rf.Close()
		return nil, fmt.Errorf("write sentinel user-data chunk: %w", err)
	}

	if err := w.SourceDef(sourceZero()); err != nil {
		rf.Close()
		return nil, err
	}
	if err := w.SignalDef(signalZero()); err != nil {
		rf.Close()
		return nil, err
	}
	return w, nil
}

// SourceDef defines a source. Fails with ErrAlreadyExists if SourceID
// was already defined (including the implicit source 0, which Open
// already defines).
func (w *Writer) SourceDef(def SourceDef) error {
	if int(def.SourceID) >= format.SourceCount {
		return fmt.Errorf("%w: source id %d >= %d", jlserrors.ErrParameterInvalid, def.SourceID, format.SourceCount)
	}
	if w.sources[def.SourceID] != nil {
		return fmt.Errorf("%w: source %d", jlserrors.ErrAlreadyExists, def.SourceID)
	}

	pb := newPayloadBuilder()
	pb.reserve(64)
	pb.str(def.Name)
	pb.str(def.Vendor)
	pb.str(def.Model)
	pb.str(def.Version)
	pb.str(def.SerialNumber)

	meta := format.ChunkMetaSignal(def.SourceID, 0)
	if _, err := w.appendChunk(&w.sourceListMRA, format.TagSourceDef, meta, pb.bytes()); err != nil {
		return fmt.Errorf("write source_def %d: %w", def.SourceID, err)
	}
	w.bumpChunkMetric(format.TagSourceDef)
	w.sources[def.SourceID] = &def
	level.Debug(w.logger).Log("msg", "source defined", "source_id", def.SourceID, "name", def.Name)
	return nil
}

// SignalDef defines a signal: validates its source and type, clamps its
// cascade factors to their format minimums (logging a warning if
// clamped), writes the signal_def chunk, and defines every track the
// signal's type requires.
func (w *Writer) SignalDef(def SignalDef) error {
	if int(def.SignalID) >= format.SignalCount {
		return fmt.Errorf("%w: signal id %d >= %d", jlserrors.ErrParameterInvalid, def.SignalID, format.SignalCount)
	}
	if w.signals[def.SignalID] != nil {
		return fmt.Errorf("%w: signal %d", jlserrors.ErrAlreadyExists, def.SignalID)
	}
	if w.sources[def.SourceID] == nil {
		return fmt.Errorf("%w: signal %d references undefined source %d", jlserrors.ErrParameterInvalid, def.SignalID, def.SourceID)
	}
	if def.DataType != format.DataTypeF32 {
		return fmt.Errorf("%w: data type %d", jlserrors.ErrNotSupported, def.DataType)
	}

	switch def.SignalType {
	case format.SignalTypeFSR:
		if def.SampleRate == 0 {
			return fmt.Errorf("%w: FSR signal %d requires nonzero sample_rate", jlserrors.ErrParameterInvalid, def.SignalID)
		}
		if def.SamplesPerData == 0 {
			return fmt.Errorf("%w: FSR signal %d requires nonzero samples_per_data", jlserrors.ErrParameterInvalid, def.SignalID)
		}
	case format.SignalTypeVSR:
		if def.SampleRate != 0 {
			level.Warn(w.logger).Log("msg", "sample_rate forced to 0 for VSR signal", "signal_id", def.SignalID)
			def.SampleRate = 0
		}
	default:
		return fmt.Errorf("%w: signal_type %d", jlserrors.ErrParameterInvalid, def.SignalType)
	}

	if def.SummaryDecimateFactor < format.SummaryDecimateFactorMin {
		level.Warn(w.logger).Log("msg", "clamping summary_decimate_factor up to minimum",
			"signal_id", def.SignalID, "requested", def.SummaryDecimateFactor, "minimum", format.SummaryDecimateFactorMin)
		def.SummaryDecimateFactor = format.SummaryDecimateFactorMin
	}
	if def.EntriesPerSummary < format.EntriesPerSummaryMin {
		level.Warn(w.logger).Log("msg", "clamping entries_per_summary up to minimum",
			"signal_id", def.SignalID, "requested", def.EntriesPerSummary, "minimum", format.EntriesPerSummaryMin)
		def.EntriesPerSummary = format.EntriesPerSummaryMin
	}
	if def.SampleDecimateFactor == 0 {
		def.SampleDecimateFactor = 1
	}

	pb := newPayloadBuilder()
	pb.u32(uint32(def.SourceID))
	pb.u8(uint8(def.SignalType))
	pb.u32(uint32(def.DataType))
	pb.u32(def.SampleRate)
	pb.u32(def.SamplesPerData)
	pb.u32(def.SampleDecimateFactor)
	pb.u32(def.EntriesPerSummary)
	pb.u32(def.SummaryDecimateFactor)
	pb.u32(def.UTCRateAuto)
	pb.str(def.Name)
	pb.str(def.SIUnits)

	meta := format.ChunkMetaSignal(def.SignalID, 0)
	if _, err := w.appendChunk(&w.signalListMRA, format.TagSignalDef, meta, pb.bytes()); err != nil {
		return fmt.Errorf("write signal_def %d: %w", def.SignalID, err)
	}
	w.bumpChunkMetric(format.TagSignalDef)

	ss := &signalState{def: def, tracks: make(map[format.TrackType]*trackState)}
	for _, tt := range tracksForSignalType(def.SignalType) {
		ts, err := w.defineTrack(def.SignalID, tt)
		if err != nil {
			return err
		}
		ss.tracks[tt] = ts
	}
	if def.SignalType == format.SignalTypeFSR {
		ss.cascade = newCascadeState(def)
	}
	w.signals[def.SignalID] = ss
	level.Debug(w.logger).Log("msg", "signal defined", "signal_id", def.SignalID, "signal_type", def.SignalType)
	return nil
}

// UserData writes one user-data chunk carrying an opaque 12-bit
// userField tag and storageType-encoded payload.
func (w *Writer) UserData(userField uint16, storageType format.StorageType, data []byte) error {
	switch storageType {
	case format.StorageTypeInvalid:
		if len(data) != 0 {
			return fmt.Errorf("%w: INVALID storage_type requires empty data", jlserrors.ErrParameterInvalid)
		}
	case format.StorageTypeBinary:
		// any length, any bytes
	case format.StorageTypeString, format.StorageTypeJSON:
		if len(data) == 0 || data[len(data)-1] != 0 {
			data = append(append([]byte{}, data...), 0)
		}
	default:
		return fmt.Errorf("%w: storage_type %d", jlserrors.ErrParameterInvalid, storageType)
	}

	meta := format.ChunkMetaUserData(userField&0x0fff, storageType)
	if _, err := w.appendChunk(&w.userDataListMRA, format.TagUserData, meta, data); err != nil {
		return fmt.Errorf("write user_data: %w", err)
	}
	w.bumpChunkMetric(format.TagUserData)
	return nil
}

// Close flushes every FSR signal's partial sample buffer and partial
// cascade accumulators as short chunks, then closes the underlying
// file. Close is idempotent.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := range w.signals {
		ss := w.signals[i]
		if ss == nil || ss.cascade == nil {
			continue
		}
		if err := w.flushPartialCascade(ss); err != nil {
			return fmt.Errorf("flush signal %d on close: %w", i, err)
		}
	}
	return w.raw.Close()
}
