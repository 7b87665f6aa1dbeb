package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlswriter"
)

type generateOptions struct {
	out        string
	sourceName string
	signalName string
	siUnits    string

	samples    uint64
	sampleRate uint32

	samplesPerData        uint32
	sampleDecimateFactor  uint32
	entriesPerSummary     uint32
	summaryDecimateFactor uint32

	waveform        string
	amplitude       float64
	period          uint32
	annotationEvery uint64
	seed            int64
}

// genSignalID is the signal this command always writes to; signal 0 is
// reserved by jlswriter.Open for the implicit global VSR annotation
// signal.
const genSignalID uint16 = 1
const genSourceID uint16 = 1
const genChunkSamples = 4096

func runGenerate(logger log.Logger, opts generateOptions) error {
	w, err := jlswriter.Open(opts.out, jlswriter.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.out, err)
	}
	defer w.Close()

	if err := w.SourceDef(jlswriter.SourceDef{
		SourceID: genSourceID,
		Name:     opts.sourceName,
		Vendor:   "jls-format",
		Model:    "jls-gen",
		Version:  "1",
	}); err != nil {
		return fmt.Errorf("define source: %w", err)
	}

	if err := w.SignalDef(jlswriter.SignalDef{
		SignalID:              genSignalID,
		SourceID:              genSourceID,
		SignalType:            format.SignalTypeFSR,
		DataType:              format.DataTypeF32,
		SampleRate:            opts.sampleRate,
		SamplesPerData:        opts.samplesPerData,
		SampleDecimateFactor:  opts.sampleDecimateFactor,
		EntriesPerSummary:     opts.entriesPerSummary,
		SummaryDecimateFactor: opts.summaryDecimateFactor,
		Name:                  opts.signalName,
		SIUnits:               opts.siUnits,
	}); err != nil {
		return fmt.Errorf("define signal: %w", err)
	}

	gen := newWaveformGenerator(opts)
	buf := make([]float32, genChunkSamples)
	var written uint64
	for written < opts.samples {
		n := uint64(len(buf))
		if remaining := opts.samples - written; remaining < n {
			n = remaining
		}
		for i := uint64(0); i < n; i++ {
			buf[i] = gen.sample(written + i)
		}
		if err := w.FSRF32(genSignalID, written, buf[:n]); err != nil {
			return fmt.Errorf("write samples at %d: %w", written, err)
		}
		if opts.annotationEvery > 0 {
			for i := uint64(0); i < n; i++ {
				sampleID := written + i
				if sampleID > 0 && sampleID%opts.annotationEvery == 0 {
					msg := []byte(fmt.Sprintf("sample %d", sampleID))
					if err := w.FSRAnnotation(genSignalID, sampleID, format.AnnotationType(0), format.StorageTypeString, msg); err != nil {
						return fmt.Errorf("write annotation at %d: %w", sampleID, err)
					}
				}
			}
		}
		written += n
	}

	level.Info(logger).Log("msg", "generated JLS file", "path", opts.out, "samples", written, "waveform", opts.waveform)
	return nil
}

// waveformGenerator produces one F32 sample per call. Triangle and sine
// are deterministic in sampleID; noise draws from a PRNG seeded once, so
// its values depend on call order rather than on sampleID.
type waveformGenerator struct {
	opts generateOptions
	rng  *rand.Rand
}

func newWaveformGenerator(opts generateOptions) *waveformGenerator {
	return &waveformGenerator{opts: opts, rng: rand.New(rand.NewSource(opts.seed))}
}

func (g *waveformGenerator) sample(sampleID uint64) float32 {
	period := float64(g.opts.period)
	if period == 0 {
		period = 1
	}
	phase := math.Mod(float64(sampleID), period) / period

	switch g.opts.waveform {
	case "sine":
		return float32(g.opts.amplitude * math.Sin(2*math.Pi*phase))
	case "noise":
		return float32(g.opts.amplitude * (2*g.rng.Float64() - 1))
	default: // triangle
		v := 4*phase - 1
		if phase > 0.5 {
			v = 3 - 4*phase
		}
		return float32(g.opts.amplitude * v)
	}
}
