package jlsreader

import (
	"fmt"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

// Annotations returns every annotation recorded against signalID's
// ANNOTATION track, in chronological (write) order.
//
// The ANNOTATION track never cascades into summary levels, so its head
// vector's slot 0 (otherwise summary level 1's tail) holds the data
// list's own tail offset instead (see jlswriter.writeAnnotation). A
// reader only ever has that tail, so it walks item_prev back to the
// track's first chunk, then reverses.
func (r *Reader) Annotations(signalID uint16) ([]Annotation, error) {
	if int(signalID) >= format.SignalCount {
		return nil, fmt.Errorf("%w: signal id %d", jlserrors.ErrParameterInvalid, signalID)
	}
	ss := r.signals[signalID]
	if ss == nil {
		return nil, fmt.Errorf("%w: signal %d", jlserrors.ErrNotFound, signalID)
	}
	ts, ok := ss.tracks[format.TrackTypeAnnotation]
	if !ok {
		return nil, fmt.Errorf("%w: signal %d has no annotation track", jlserrors.ErrNotSupported, signalID)
	}

	tail := int64(ts.headLevels[0])
	if tail == 0 {
		return nil, nil
	}

	var out []Annotation
	offset := tail
	capHint := initialReadCap
	for offset != 0 {
		if err := r.raw.Seek(offset); err != nil {
			return nil, err
		}
		_, h, payload, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			return nil, err
		}
		ann, err := parseAnnotation(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed annotation at offset %d: %v", jlserrors.ErrIO, offset, err)
		}
		out = append(out, ann)
		offset = int64(h.ItemPrev)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// parseAnnotation decodes the {timestamp i64, annotation_type u8,
// storage_type u8, rsv u8, rsv u8, data_size u32, data...} layout
// jlswriter's writeAnnotation encodes.
func parseAnnotation(payload []byte) (Annotation, error) {
	pr := newPayloadReader(payload)
	timestamp, err := pr.i64()
	if err != nil {
		return Annotation{}, fmt.Errorf("timestamp: %w", err)
	}
	annotationType, err := pr.u8()
	if err != nil {
		return Annotation{}, fmt.Errorf("annotation_type: %w", err)
	}
	storageType, err := pr.u8()
	if err != nil {
		return Annotation{}, fmt.Errorf("storage_type: %w", err)
	}
	if err := pr.skip(2); err != nil { // two reserved bytes, not one u16
		return Annotation{}, fmt.Errorf("reserved: %w", err)
	}
	dataSize, err := pr.u32()
	if err != nil {
		return Annotation{}, fmt.Errorf("data_size: %w", err)
	}
	if err := pr.need(int(dataSize)); err != nil {
		return Annotation{}, fmt.Errorf("data: %w", err)
	}
	data := payload[pr.pos : pr.pos+int(dataSize)]
	return Annotation{
		Timestamp:      timestamp,
		AnnotationType: format.AnnotationType(annotationType),
		StorageType:    format.StorageType(storageType),
		Data:           data,
	}, nil
}
