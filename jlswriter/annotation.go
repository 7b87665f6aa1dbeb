package jlswriter

import (
	"fmt"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

// Annotation payload layout: {timestamp: i64, annotation_type: u8,
// storage_type: u8, rsv: u16, data_size: u32, data...}. timestamp is a
// sample_id for FSR annotations and a caller-defined timestamp (e.g. a
// VSR sample's own timestamp) for VSR annotations — the field is the
// same width and position either way, matching the two call sites
// sharing one track-kind.
func (w *Writer) writeAnnotation(signalID uint16, trackType format.TrackType, timestamp int64, annotationType format.AnnotationType, storageType format.StorageType, data []byte) error {
	ss := w.signals[signalID]
	if ss == nil {
		return fmt.Errorf("%w: signal %d not defined", jlserrors.ErrNotFound, signalID)
	}
	ts, ok := ss.tracks[format.TrackTypeAnnotation]
	if !ok {
		return fmt.Errorf("%w: signal %d has no annotation track", jlserrors.ErrNotSupported, signalID)
	}
	if storageType == format.StorageTypeInvalid && len(data) != 0 {
		return fmt.Errorf("%w: INVALID storage_type requires empty data", jlserrors.ErrParameterInvalid)
	}

	pb := newPayloadBuilder()
	pb.i64(timestamp)
	pb.u8(uint8(annotationType))
	pb.u8(uint8(storageType))
	pb.u8(0)
	pb.u8(0)
	pb.u32(uint32(len(data)))
	pb.buf = append(pb.buf, data...)

	meta := format.ChunkMetaSignal(signalID, 0)
	tag := format.TrackTag(format.TrackTypeAnnotation, format.ChunkKindData)
	offset, err := w.appendChunk(&ts.dataMRA, tag, meta, pb.bytes())
	if err != nil {
		return fmt.Errorf("write annotation (signal %d): %w", signalID, err)
	}
	w.bumpChunkMetric(tag)
	// ANNOTATION never cascades into summary levels, so head slot 0 (which
	// would otherwise hold summary level 1's tail) is repurposed to hold
	// the data list's own tail, the only way a reader can ever find it.
	return w.patchHeadLevel(ts, 0, offset)
}

// FSRAnnotation writes an annotation keyed by sample_id into signalID's
// ANNOTATION track. signalID must be an FSR signal.
func (w *Writer) FSRAnnotation(signalID uint16, sampleID uint64, annotationType format.AnnotationType, storageType format.StorageType, data []byte) error {
	ss := w.signals[signalID]
	if ss == nil || ss.def.SignalType != format.SignalTypeFSR {
		return fmt.Errorf("%w: signal %d is not FSR", jlserrors.ErrParameterInvalid, signalID)
	}
	return w.writeAnnotation(signalID, format.TrackTypeFSR, int64(sampleID), annotationType, storageType, data)
}

// VSRAnnotation writes an annotation keyed by an explicit timestamp into
// signalID's ANNOTATION track. signalID must be a VSR signal.
func (w *Writer) VSRAnnotation(signalID uint16, timestamp int64, annotationType format.AnnotationType, storageType format.StorageType, data []byte) error {
	ss := w.signals[signalID]
	if ss == nil || ss.def.SignalType != format.SignalTypeVSR {
		return fmt.Errorf("%w: signal %d is not VSR", jlserrors.ErrParameterInvalid, signalID)
	}
	return w.writeAnnotation(signalID, format.TrackTypeVSR, timestamp, annotationType, storageType, data)
}

// FSRUTC records a UTC correlation point {sample_id, utc} for an FSR
// signal's UTC track.
func (w *Writer) FSRUTC(signalID uint16, sampleID uint64, utc int64) error {
	ss := w.signals[signalID]
	if ss == nil || ss.def.SignalType != format.SignalTypeFSR {
		return fmt.Errorf("%w: signal %d is not FSR", jlserrors.ErrParameterInvalid, signalID)
	}
	ts, ok := ss.tracks[format.TrackTypeUTC]
	if !ok {
		return fmt.Errorf("%w: signal %d has no UTC track", jlserrors.ErrNotSupported, signalID)
	}

	pb := newPayloadBuilder()
	pb.u64(sampleID)
	pb.i64(utc)

	meta := format.ChunkMetaSignal(signalID, 0)
	tag := format.TrackTag(format.TrackTypeUTC, format.ChunkKindData)
	offset, err := w.appendChunk(&ts.dataMRA, tag, meta, pb.bytes())
	if err != nil {
		return fmt.Errorf("write UTC correlation (signal %d): %w", signalID, err)
	}
	w.bumpChunkMetric(tag)
	// UTC never cascades into summary levels either; see FSRAnnotation's
	// sibling writeAnnotation for the same head-slot-0 repurposing.
	return w.patchHeadLevel(ts, 0, offset)
}
