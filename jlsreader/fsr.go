package jlsreader

import (
	"fmt"
	"math"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
	"github.com/jls-format/jls/jlserrors"
)

func (r *Reader) fsrTrack(signalID uint16) (*signalState, *trackState, error) {
	if int(signalID) >= format.SignalCount {
		return nil, nil, fmt.Errorf("%w: signal id %d", jlserrors.ErrParameterInvalid, signalID)
	}
	ss := r.signals[signalID]
	if ss == nil {
		return nil, nil, fmt.Errorf("%w: signal %d", jlserrors.ErrNotFound, signalID)
	}
	if ss.signal.SignalType != format.SignalTypeFSR {
		return nil, nil, fmt.Errorf("%w: signal %d is not FSR", jlserrors.ErrNotSupported, signalID)
	}
	ts, ok := ss.tracks[format.TrackTypeFSR]
	if !ok {
		return nil, nil, fmt.Errorf("%w: signal %d has no FSR track", jlserrors.ErrNotFound, signalID)
	}
	return ss, ts, nil
}

// stepSchedule recomputes, from a signal's stored cascade factors, the
// same per-level step sizes (raw samples per entry) jlswriter's cascade
// used when it wrote the file: step(1) = sample_decimate_factor,
// step(L) = step(L-1) * summary_decimate_factor for L > 1.
func stepSchedule(sig Signal) [format.SummaryLevelCount + 1]uint64 {
	var step [format.SummaryLevelCount + 1]uint64
	sdf := uint64(sig.SampleDecimateFactor)
	if sdf == 0 {
		sdf = 1
	}
	sumdf := uint64(sig.SummaryDecimateFactor)
	if sumdf == 0 {
		sumdf = 1
	}
	step[1] = sdf
	for l := 2; l <= format.SummaryLevelCount; l++ {
		step[l] = step[l-1] * sumdf
	}
	return step
}

func topPopulatedLevel(ts *trackState) int {
	for l := format.SummaryLevelCount; l >= 1; l-- {
		if ts.headLevels[l-1] != 0 {
			return l
		}
	}
	return 0
}

// FSRLength returns the FSR signal's sample count: head.payload[L] for
// the highest populated level L, then a descent through index chunks to
// the final data chunk, whose {sample_id, sample_count} gives the
// length. Returns 0 if no summary level has ever been populated — a
// limitation inherited from the head vector only tracking summary
// levels (see DESIGN.md).
func (r *Reader) FSRLength(signalID uint16) (int64, error) {
	_, ts, err := r.fsrTrack(signalID)
	if err != nil {
		return 0, err
	}
	topLevel := topPopulatedLevel(ts)
	if topLevel == 0 {
		return 0, nil
	}

	offset := int64(ts.headLevels[topLevel-1])
	level := topLevel
	capHint := initialReadCap
	for {
		if err := r.raw.Seek(offset); err != nil {
			return 0, err
		}
		_, _, payload, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			return 0, err
		}
		pr := newPayloadReader(payload)
		if level == 0 {
			sampleID, err := pr.u64()
			if err != nil {
				return 0, err
			}
			count, err := pr.u64()
			if err != nil {
				return 0, err
			}
			return int64(sampleID + count), nil
		}
		if _, err := pr.i64(); err != nil { // timestamp_start
			return 0, err
		}
		entryCount, err := pr.i64()
		if err != nil {
			return 0, err
		}
		if entryCount <= 0 {
			return 0, fmt.Errorf("%w: empty index chunk at %d", jlserrors.ErrIO, offset)
		}
		if err := pr.skip(int(entryCount-1) * 8); err != nil {
			return 0, err
		}
		child, err := pr.i64()
		if err != nil {
			return 0, err
		}
		offset = child
		level--
	}
}

// seekIndexLevel descends from the highest populated level down to
// targetLevel (1..SummaryLevelCount), computing at each hop idx =
// (sampleID - timestamp_start) / step, clamped to the chunk's entries,
// and following payload[2+idx] to the next (level-1) index chunk.
// Returns the index chunk at targetLevel plus the entry index within it
// that covers sampleID.
func (r *Reader) seekIndexLevel(ts *trackState, sig Signal, targetLevel int, sampleID uint64) (int64, raw.Header, []byte, int64, error) {
	topLevel := topPopulatedLevel(ts)
	if topLevel == 0 || targetLevel > topLevel || targetLevel < 1 {
		return 0, raw.Header{}, nil, 0, jlserrors.ErrNotFound
	}
	steps := stepSchedule(sig)
	offset := int64(ts.headLevels[topLevel-1])
	level := topLevel
	capHint := initialReadCap
	for {
		if err := r.raw.Seek(offset); err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		_, h, payload, newCap, err := r.readChunk(capHint)
		capHint = newCap
		if err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		pr := newPayloadReader(payload)
		timestampStart, err := pr.i64()
		if err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		entryCount, err := pr.i64()
		if err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		if entryCount <= 0 {
			return 0, raw.Header{}, nil, 0, fmt.Errorf("%w: empty index chunk at %d", jlserrors.ErrIO, offset)
		}
		step := steps[level]
		idx := int64(0)
		if step > 0 {
			idx = (int64(sampleID) - timestampStart) / int64(step)
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= entryCount {
			idx = entryCount - 1
		}
		if level == targetLevel {
			return offset, h, payload, idx, nil
		}
		if err := pr.skip(int(idx) * 8); err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		child, err := pr.i64()
		if err != nil {
			return 0, raw.Header{}, nil, 0, err
		}
		offset = child
		level--
	}
}

// seekDataChunk descends to the level-1 index chunk, follows its
// child pointer (a data chunk, per this reader's index-topology
// convention), and returns it.
func (r *Reader) seekDataChunk(ts *trackState, sig Signal, sampleID uint64) (int64, raw.Header, []byte, error) {
	offset, _, payload, idx, err := r.seekIndexLevel(ts, sig, 1, sampleID)
	if err != nil {
		return 0, raw.Header{}, nil, err
	}
	pr := newPayloadReader(payload)
	if _, err := pr.i64(); err != nil {
		return 0, raw.Header{}, nil, err
	}
	if _, err := pr.i64(); err != nil {
		return 0, raw.Header{}, nil, err
	}
	if err := pr.skip(int(idx) * 8); err != nil {
		return 0, raw.Header{}, nil, err
	}
	childOffset, err := pr.i64()
	if err != nil {
		return 0, raw.Header{}, nil, err
	}
	_ = offset
	if err := r.raw.Seek(childOffset); err != nil {
		return 0, raw.Header{}, nil, err
	}
	dataOffset, h, dataPayload, _, err := r.readChunk(initialReadCap)
	if err != nil {
		return 0, raw.Header{}, nil, err
	}
	return dataOffset, h, dataPayload, nil
}

// readPairedSummary recovers the summary chunk that was written
// immediately before an index chunk, using payload_prev_length for the
// reverse physical scan the raw format reserves that field for.
func (r *Reader) readPairedSummary(indexOffset int64, indexHeader raw.Header) ([]byte, error) {
	prevStart := indexOffset - raw.HeaderSize - int64(indexHeader.PayloadPrevLength) - 4
	if prevStart < raw.FileHeaderSize {
		return nil, fmt.Errorf("%w: no paired summary chunk before index at %d", jlserrors.ErrIO, indexOffset)
	}
	if err := r.raw.Seek(prevStart); err != nil {
		return nil, err
	}
	_, _, payload, _, err := r.readChunk(int(indexHeader.PayloadPrevLength))
	return payload, err
}

// FSRF32 fills out with consecutive F32 samples starting at
// startSampleID, following the data chunk list's item_next across chunk
// boundaries as needed. Returns the number of samples written; a gap
// between data chunks fails with ErrNotFound.
func (r *Reader) FSRF32(signalID uint16, startSampleID uint64, out []float32) (int, error) {
	ss, ts, err := r.fsrTrack(signalID)
	if err != nil {
		return 0, err
	}
	_, h, payload, err := r.seekDataChunk(ts, ss.signal, startSampleID)
	if err != nil {
		return 0, err
	}

	written := 0
	curSampleID := startSampleID
	for written < len(out) {
		pr := newPayloadReader(payload)
		chunkSampleID, err := pr.u64()
		if err != nil {
			return written, err
		}
		count, err := pr.u64()
		if err != nil {
			return written, err
		}
		if curSampleID < chunkSampleID || curSampleID >= chunkSampleID+count {
			return written, fmt.Errorf("%w: gap in data chunks at sample %d", jlserrors.ErrNotFound, curSampleID)
		}
		localStart := int(curSampleID - chunkSampleID)
		if err := pr.skip(localStart * 4); err != nil {
			return written, err
		}
		for i := localStart; i < int(count) && written < len(out); i++ {
			v, err := pr.f32()
			if err != nil {
				return written, err
			}
			out[written] = v
			written++
			curSampleID++
		}
		if written >= len(out) {
			break
		}
		if h.ItemNext == 0 {
			return written, jlserrors.ErrEmpty
		}
		if err := r.raw.Seek(int64(h.ItemNext)); err != nil {
			return written, err
		}
		_, h2, payload2, _, err := r.readChunk(len(payload) + 8)
		if err != nil {
			return written, err
		}
		h, payload = h2, payload2
	}
	return written, nil
}

// statisticsFromRaw aggregates n raw samples starting at sampleID using
// the same math jlswriter's cascade uses, for increments finer than the
// signal's finest summary level.
func (r *Reader) statisticsFromRaw(ts *trackState, sig Signal, sampleID uint64, n uint64) (Statistics, error) {
	samples := make([]float32, n)
	got, err := r.FSRF32(sig.SignalID, sampleID, samples)
	if err != nil && got == 0 {
		return Statistics{}, err
	}
	samples = samples[:got]
	entry := statsFromSamples(samples)
	return Statistics{SampleID: sampleID, Min: entry.min, Max: entry.max, Mean: entry.mean, Variance: entry.variance}, nil
}

// statisticsFromLevel reads (and, if increment spans more than one
// entry, combines) summary entries at the given level, recovered from
// the paired summary chunk via readPairedSummary. Aggregation is
// clamped to the entries available in the single summary chunk the
// starting entry lives in.
func (r *Reader) statisticsFromLevel(ts *trackState, sig Signal, level int, sampleID uint64, increment uint64, step uint64) (Statistics, error) {
	indexOffset, indexHeader, _, idx, err := r.seekIndexLevel(ts, sig, level, sampleID)
	if err != nil {
		return Statistics{}, err
	}
	summaryPayload, err := r.readPairedSummary(indexOffset, indexHeader)
	if err != nil {
		return Statistics{}, err
	}
	pr := newPayloadReader(summaryPayload)
	timestampStart, err := pr.i64()
	if err != nil {
		return Statistics{}, err
	}
	entryCount, err := pr.i64()
	if err != nil {
		return Statistics{}, err
	}
	if idx >= entryCount {
		idx = entryCount - 1
	}
	if err := pr.skip(int(idx) * 4 * 4); err != nil {
		return Statistics{}, err
	}

	k := int64(increment / step)
	if k < 1 {
		k = 1
	}
	if idx+k > entryCount {
		k = entryCount - idx
	}

	var combined *summaryEntryR
	for i := int64(0); i < k; i++ {
		min, err := pr.f32()
		if err != nil {
			return Statistics{}, err
		}
		max, err := pr.f32()
		if err != nil {
			return Statistics{}, err
		}
		mean, err := pr.f32()
		if err != nil {
			return Statistics{}, err
		}
		variance, err := pr.f32()
		if err != nil {
			return Statistics{}, err
		}
		e := &summaryEntryR{min: min, max: max, mean: mean, variance: variance, n: step}
		if combined == nil {
			combined = e
		} else {
			combined = combine2R(combined, e)
		}
	}
	sid := uint64(timestampStart) + uint64(idx)*step
	return Statistics{SampleID: sid, Min: combined.min, Max: combined.max, Mean: combined.mean, Variance: combined.variance}, nil
}

// FSRF32Statistics fills out with one Statistics entry per index,
// starting at startSampleID and advancing by increment samples each
// step, choosing the coarsest summary level whose step does not exceed
// increment (falling back to raw-sample aggregation when increment is
// below the finest level's step).
func (r *Reader) FSRF32Statistics(signalID uint16, startSampleID uint64, increment uint64, out []Statistics) (int, error) {
	ss, ts, err := r.fsrTrack(signalID)
	if err != nil {
		return 0, err
	}
	if increment == 0 {
		increment = 1
	}
	steps := stepSchedule(ss.signal)
	level := 0
	for l := 1; l <= format.SummaryLevelCount; l++ {
		if steps[l] <= increment {
			level = l
		} else {
			break
		}
	}

	written := 0
	for i := 0; i < len(out); i++ {
		sampleID := startSampleID + uint64(i)*increment
		var stat Statistics
		var err error
		if level == 0 {
			stat, err = r.statisticsFromRaw(ts, ss.signal, sampleID, increment)
		} else {
			stat, err = r.statisticsFromLevel(ts, ss.signal, level, sampleID, increment, steps[level])
		}
		if err != nil {
			return written, err
		}
		out[i] = stat
		written++
	}
	return written, nil
}

// summaryEntryR is the reader-side counterpart of jlswriter's
// summaryEntry, kept package-local since the two layers never share
// cascade state, only its on-disk encoding.
type summaryEntryR struct {
	min, max, mean, variance float32
	n                        uint64
}

func statsFromSamples(samples []float32) summaryEntryR {
	var sum, sumSq float64
	count := 0
	hasNaN := false
	min := float32(math.Inf(1))
	max := float32(math.Inf(-1))
	for _, s := range samples {
		if math.IsNaN(float64(s)) {
			hasNaN = true
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += float64(s)
		sumSq += float64(s) * float64(s)
		count++
	}
	if count == 0 {
		min = float32(math.NaN())
		max = float32(math.NaN())
	}
	var mean, variance float64
	if hasNaN {
		mean = math.NaN()
		variance = math.NaN()
	} else if count > 0 {
		mean = sum / float64(count)
		variance = sumSq/float64(count) - mean*mean
	}
	return summaryEntryR{min: min, max: max, mean: float32(mean), variance: float32(variance), n: uint64(len(samples))}
}

func combine2R(a, b *summaryEntryR) *summaryEntryR {
	n1, n2 := float64(a.n), float64(b.n)
	n := n1 + n2
	if n == 0 {
		return &summaryEntryR{}
	}
	mu1, mu2 := float64(a.mean), float64(b.mean)
	mu := (n1*mu1 + n2*mu2) / n
	v1, v2 := float64(a.variance), float64(b.variance)
	variance := (n1*(v1+(mu1-mu)*(mu1-mu)) + n2*(v2+(mu2-mu)*(mu2-mu))) / n
	return &summaryEntryR{
		min:      minIgnoreNaNR(a.min, b.min),
		max:      maxIgnoreNaNR(a.max, b.max),
		mean:     float32(mu),
		variance: float32(variance),
		n:        a.n + b.n,
	}
}

func minIgnoreNaNR(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func maxIgnoreNaNR(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a > b {
		return a
	}
	return b
}
