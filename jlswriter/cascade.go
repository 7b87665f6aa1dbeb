package jlswriter

import (
	"fmt"
	"math"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

// summaryEntry is one (min, max, mean, variance) tuple plus the sample
// count it summarizes, the unit the decimation cascade pushes between
// levels.
type summaryEntry struct {
	min, max, mean, variance float32
	n                        uint64
}

// levelAccumulator buffers summaryEntry values (and the offset of the
// level-below chunk each came from) until entries_per_summary of them
// have arrived, at which point the level flushes a summary+index chunk
// pair and feeds a decimated batch to the level above.
type levelAccumulator struct {
	entries         []summaryEntry
	childOffsets    []int64
	entryTimestamps []int64
}

// cascadeState is one FSR signal's decimation pipeline: the raw sample
// buffer (level 0) plus one accumulator per summary level.
type cascadeState struct {
	samplesPerData        uint32
	sampleDecimateFactor  uint32
	entriesPerSummary     uint32
	summaryDecimateFactor uint32

	rawBuf         []float32
	rawBufSampleID uint64

	levels [format.SummaryLevelCount + 1]*levelAccumulator
}

func newCascadeState(def SignalDef) *cascadeState {
	c := &cascadeState{
		samplesPerData:        def.SamplesPerData,
		sampleDecimateFactor:  def.SampleDecimateFactor,
		entriesPerSummary:     def.EntriesPerSummary,
		summaryDecimateFactor: def.SummaryDecimateFactor,
		rawBuf:                make([]float32, 0, def.SamplesPerData),
	}
	for l := 1; l <= format.SummaryLevelCount; l++ {
		c.levels[l] = &levelAccumulator{}
	}
	return c
}

// FSRF32 buffers n samples starting at sampleID into the signal's raw
// sample buffer, emitting a data chunk (and driving the summary cascade)
// every time the buffer fills to samples_per_data. Unlike the original
// source's early-returning loop, this continues until every sample has
// been buffered or flushed.
func (w *Writer) FSRF32(signalID uint16, sampleID uint64, samples []float32) error {
	ss, err := w.fsrSignal(signalID)
	if err != nil {
		return err
	}
	c := ss.cascade
	remaining := samples
	cur := sampleID
	for len(remaining) > 0 {
		if len(c.rawBuf) == 0 {
			c.rawBufSampleID = cur
		}
		space := int(c.samplesPerData) - len(c.rawBuf)
		if space <= 0 {
			return fmt.Errorf("%w: signal %d samples_per_data misconfigured", jlserrors.ErrParameterInvalid, signalID)
		}
		n := space
		if n > len(remaining) {
			n = len(remaining)
		}
		c.rawBuf = append(c.rawBuf, remaining[:n]...)
		remaining = remaining[n:]
		cur += uint64(n)
		if len(c.rawBuf) == int(c.samplesPerData) {
			if err := w.flushRawBuffer(ss); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) fsrSignal(signalID uint16) (*signalState, error) {
	if int(signalID) >= format.SignalCount {
		return nil, fmt.Errorf("%w: signal id %d out of range", jlserrors.ErrParameterInvalid, signalID)
	}
	ss := w.signals[signalID]
	if ss == nil {
		return nil, fmt.Errorf("%w: signal %d not defined", jlserrors.ErrNotFound, signalID)
	}
	if ss.def.SignalType != format.SignalTypeFSR || ss.cascade == nil {
		return nil, fmt.Errorf("%w: signal %d is not FSR", jlserrors.ErrNotSupported, signalID)
	}
	return ss, nil
}

// flushRawBuffer emits the current raw sample buffer as a level-0 data
// chunk and feeds the cascade's level 1 accumulator, recursing upward
// through any levels that fill as a result.
func (w *Writer) flushRawBuffer(ss *signalState) error {
	c := ss.cascade
	if len(c.rawBuf) == 0 {
		return nil
	}
	ts := ss.tracks[format.TrackTypeFSR]

	pb := newPayloadBuilder()
	pb.u64(c.rawBufSampleID)
	pb.u64(uint64(len(c.rawBuf)))
	for _, s := range c.rawBuf {
		pb.f32(s)
	}
	meta := format.ChunkMetaSignal(ss.def.SignalID, 0)
	dataOffset, err := w.appendChunk(&ts.dataMRA, format.TrackTag(format.TrackTypeFSR, format.ChunkKindData), meta, pb.bytes())
	if err != nil {
		return fmt.Errorf("write FSR data chunk (signal %d): %w", ss.def.SignalID, err)
	}
	w.bumpChunkMetric(format.TrackTag(format.TrackTypeFSR, format.ChunkKindData))

	entries, timestamps := decimateRaw(c.rawBuf, c.rawBufSampleID, c.sampleDecimateFactor)
	childOffsets := make([]int64, len(entries))
	for i := range childOffsets {
		childOffsets[i] = dataOffset
	}

	c.rawBuf = c.rawBuf[:0]

	return w.pushLevel(ss, 1, entries, childOffsets, timestamps)
}

// pushLevel appends a decimated batch to level L's accumulator and
// flushes the level (possibly recursively, into L+1) whenever it reaches
// entries_per_summary entries.
func (w *Writer) pushLevel(ss *signalState, level int, entries []summaryEntry, childOffsets []int64, timestamps []int64) error {
	if level > format.SummaryLevelCount || len(entries) == 0 {
		return nil
	}
	acc := ss.cascade.levels[level]
	acc.entries = append(acc.entries, entries...)
	acc.childOffsets = append(acc.childOffsets, childOffsets...)
	acc.entryTimestamps = append(acc.entryTimestamps, timestamps...)
	return w.flushLevelIfFull(ss, level)
}

func (w *Writer) flushLevelIfFull(ss *signalState, level int) error {
	c := ss.cascade
	acc := c.levels[level]
	n := int(c.entriesPerSummary)
	for len(acc.entries) >= n {
		entries := acc.entries[:n]
		childOffsets := acc.childOffsets[:n]
		timestamp := acc.entryTimestamps[0]

		indexOffset, err := w.emitSummaryAndIndex(ss, level, timestamp, entries, childOffsets)
		if err != nil {
			return err
		}

		parents, parentTimestamps := decimateEntries(entries, acc.entryTimestamps[:n], c.summaryDecimateFactor)
		parentChildOffsets := make([]int64, len(parents))
		for i := range parentChildOffsets {
			parentChildOffsets[i] = indexOffset
		}

		acc.entries = acc.entries[n:]
		acc.childOffsets = acc.childOffsets[n:]
		acc.entryTimestamps = acc.entryTimestamps[n:]

		if err := w.pushLevel(ss, level+1, parents, parentChildOffsets, parentTimestamps); err != nil {
			return err
		}
	}
	return nil
}

// emitSummaryAndIndex writes the level-L summary chunk immediately
// followed by the level-L index chunk (guaranteeing physical adjacency,
// so a reader can recover the summary chunk from the index chunk via
// payload_prev_length), patches the track head's level-L slot to the new
// index chunk, and returns the index chunk's offset.
//
// Index entries for level 1 point at the data chunks that contributed;
// for level L>1 they point at the level-(L-1) INDEX chunk covering that
// entry's children, not the summary chunk — the seek algorithm descends
// index-to-index, and recovers an intermediate level's summary statistics
// via the physical-adjacency trick above rather than via the index
// payload itself. See DESIGN.md for why this resolves the format's
// ambiguity between the two in a way that keeps seek() implementable.
func (w *Writer) emitSummaryAndIndex(ss *signalState, level int, timestampStart int64, entries []summaryEntry, childOffsets []int64) (int64, error) {
	ts := ss.tracks[format.TrackTypeFSR]
	meta := format.ChunkMetaSignal(ss.def.SignalID, uint8(level))

	sp := newPayloadBuilder()
	sp.i64(timestampStart)
	sp.i64(int64(len(entries)))
	for _, e := range entries {
		sp.f32(e.min)
		sp.f32(e.max)
		sp.f32(e.mean)
		sp.f32(e.variance)
	}
	summaryTag := format.TrackTag(format.TrackTypeFSR, format.ChunkKindSummary)
	if _, err := w.appendChunk(&ts.summaryMRA[level], summaryTag, meta, sp.bytes()); err != nil {
		return 0, fmt.Errorf("write level-%d summary chunk (signal %d): %w", level, ss.def.SignalID, err)
	}
	w.bumpChunkMetric(summaryTag)
	w.bumpSummaryFlushMetric(level)

	ip := newPayloadBuilder()
	ip.i64(timestampStart)
	ip.i64(int64(len(childOffsets)))
	for _, off := range childOffsets {
		ip.i64(off)
	}
	indexTag := format.TrackTag(format.TrackTypeFSR, format.ChunkKindIndex)
	indexOffset, err := w.appendChunk(&ts.indexMRA[level], indexTag, meta, ip.bytes())
	if err != nil {
		return 0, fmt.Errorf("write level-%d index chunk (signal %d): %w", level, ss.def.SignalID, err)
	}
	w.bumpChunkMetric(indexTag)

	if err := w.patchHeadLevel(ts, level-1, indexOffset); err != nil {
		return 0, fmt.Errorf("patch track head level %d (signal %d): %w", level, ss.def.SignalID, err)
	}
	return indexOffset, nil
}

// flushPartialCascade is called from Close: it flushes whatever raw
// samples and level accumulators remain as short chunks, bottom-up,
// exactly once, without the entries_per_summary threshold.
func (w *Writer) flushPartialCascade(ss *signalState) error {
	c := ss.cascade
	if len(c.rawBuf) > 0 {
		if err := w.flushRawBufferShort(ss); err != nil {
			return err
		}
	}
	for level := 1; level <= format.SummaryLevelCount; level++ {
		acc := c.levels[level]
		if len(acc.entries) == 0 {
			continue
		}
		indexOffset, err := w.emitSummaryAndIndex(ss, level, acc.entryTimestamps[0], acc.entries, acc.childOffsets)
		if err != nil {
			return err
		}
		parents, parentTimestamps := decimateEntries(acc.entries, acc.entryTimestamps, c.summaryDecimateFactor)
		acc.entries = nil
		acc.childOffsets = nil
		acc.entryTimestamps = nil
		if level+1 <= format.SummaryLevelCount && len(parents) > 0 {
			parentChildOffsets := make([]int64, len(parents))
			for i := range parentChildOffsets {
				parentChildOffsets[i] = indexOffset
			}
			if err := w.pushLevel(ss, level+1, parents, parentChildOffsets, parentTimestamps); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushRawBufferShort is flushRawBuffer's Close-time counterpart: the
// buffer may be shorter than samples_per_data, and the final decimation
// group may be shorter than sample_decimate_factor.
func (w *Writer) flushRawBufferShort(ss *signalState) error {
	return w.flushRawBuffer(ss)
}

func decimateRaw(samples []float32, startSampleID uint64, factor uint32) ([]summaryEntry, []int64) {
	if factor == 0 {
		factor = 1
	}
	var entries []summaryEntry
	var timestamps []int64
	for i := 0; i < len(samples); i += int(factor) {
		end := i + int(factor)
		if end > len(samples) {
			end = len(samples)
		}
		entries = append(entries, summarizeSamples(samples[i:end]))
		timestamps = append(timestamps, int64(startSampleID)+int64(i))
	}
	return entries, timestamps
}

func decimateEntries(entries []summaryEntry, timestamps []int64, factor uint32) ([]summaryEntry, []int64) {
	if factor == 0 {
		factor = 1
	}
	var parents []summaryEntry
	var parentTimestamps []int64
	for i := 0; i < len(entries); i += int(factor) {
		end := i + int(factor)
		if end > len(entries) {
			end = len(entries)
		}
		parents = append(parents, combineEntries(entries[i:end]))
		parentTimestamps = append(parentTimestamps, timestamps[i])
	}
	return parents, parentTimestamps
}

func summarizeSamples(samples []float32) summaryEntry {
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
	return summaryEntry{min: min, max: max, mean: float32(mean), variance: float32(variance), n: uint64(len(samples))}
}

// combineEntries folds a run of sibling entries into their parent entry
// using the parallel variance-combination formula, pairwise left to
// right; min/max ignore a NaN side rather than propagating it, so a
// parent's min/max reflect the non-NaN subset exactly as a leaf's would.
func combineEntries(entries []summaryEntry) summaryEntry {
	acc := entries[0]
	for _, e := range entries[1:] {
		acc = combine2(acc, e)
	}
	return acc
}

func combine2(a, b summaryEntry) summaryEntry {
	n1, n2 := float64(a.n), float64(b.n)
	n := n1 + n2
	if n == 0 {
		return summaryEntry{min: minIgnoreNaN(a.min, b.min), max: maxIgnoreNaN(a.max, b.max)}
	}
	mu1, mu2 := float64(a.mean), float64(b.mean)
	mu := (n1*mu1 + n2*mu2) / n
	v1, v2 := float64(a.variance), float64(b.variance)
	variance := (n1*(v1+(mu1-mu)*(mu1-mu)) + n2*(v2+(mu2-mu)*(mu2-mu))) / n
	return summaryEntry{
		min:      minIgnoreNaN(a.min, b.min),
		max:      maxIgnoreNaN(a.max, b.max),
		mean:     float32(mu),
		variance: float32(variance),
		n:        a.n + b.n,
	}
}

func minIgnoreNaN(a, b float32) float32 {
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

func maxIgnoreNaN(a, b float32) float32 {
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
