package jlsreader_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
	"github.com/jls-format/jls/jlsreader"
	"github.com/jls-format/jls/jlswriter"
)

const (
	testSignalID          uint16 = 1
	testSourceID          uint16 = 1
	testSamplesPerData           = 100
	testSampleDecimate           = 1
	testEntriesPerSummary        = format.EntriesPerSummaryMin
	testSummaryDecimate          = format.SummaryDecimateFactorMin
	testSampleCount              = testEntriesPerSummary * testSampleDecimate // exactly one level-1 flush
)

// writeTestFile writes one source, one FSR signal carrying a triangle
// wave, two annotations, one UTC point, and two user-data records,
// returning the generated samples for comparison.
func writeTestFile(t *testing.T) (string, []float32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.jls")

	w, err := jlswriter.Open(path, jlswriter.Options{})
	require.NoError(t, err)

	require.NoError(t, w.SourceDef(jlswriter.SourceDef{
		SourceID: testSourceID,
		Name:     "bench",
		Vendor:   "acme",
		Model:    "model-1",
		Version:  "1.0",
	}))

	require.NoError(t, w.SignalDef(jlswriter.SignalDef{
		SignalID:              testSignalID,
		SourceID:              testSourceID,
		SignalType:            format.SignalTypeFSR,
		DataType:              format.DataTypeF32,
		SampleRate:            1000,
		SamplesPerData:        testSamplesPerData,
		SampleDecimateFactor:  testSampleDecimate,
		EntriesPerSummary:     testEntriesPerSummary,
		SummaryDecimateFactor: testSummaryDecimate,
		Name:                  "triangle",
		SIUnits:               "V",
	}))

	samples := make([]float32, testSampleCount)
	for i := range samples {
		phase := float64(i%200) / 200.0
		v := 4*phase - 1
		if phase > 0.5 {
			v = 3 - 4*phase
		}
		samples[i] = float32(v)
	}
	require.NoError(t, w.FSRF32(testSignalID, 0, samples))

	require.NoError(t, w.FSRAnnotation(testSignalID, 10, format.AnnotationType(1), format.StorageTypeString, []byte("first")))
	require.NoError(t, w.FSRAnnotation(testSignalID, 500, format.AnnotationType(2), format.StorageTypeString, []byte("second")))
	require.NoError(t, w.FSRUTC(testSignalID, 0, 1700000000))

	require.NoError(t, w.UserData(1, format.StorageTypeBinary, []byte{0xde, 0xad}))
	require.NoError(t, w.UserData(2, format.StorageTypeString, []byte("note")))

	require.NoError(t, w.Close())
	return path, samples
}

func TestReaderEnumeratesSourcesAndSignals(t *testing.T) {
	path, _ := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	sources := r.Sources()
	var found bool
	for _, s := range sources {
		if s.SourceID == testSourceID {
			found = true
			require.Equal(t, "bench", s.Name)
			require.Equal(t, "acme", s.Vendor)
		}
	}
	require.True(t, found, "defined source must be enumerated")

	signals := r.Signals()
	found = false
	for _, sig := range signals {
		if sig.SignalID == testSignalID {
			found = true
			require.Equal(t, format.SignalTypeFSR, sig.SignalType)
			require.Equal(t, uint32(1000), sig.SampleRate)
		}
	}
	require.True(t, found, "defined signal must be enumerated")
}

func TestReaderFSRLengthAndF32RoundTrip(t *testing.T) {
	path, samples := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	n, err := r.FSRLength(testSignalID)
	require.NoError(t, err)
	require.Equal(t, int64(len(samples)), n)

	out := make([]float32, len(samples))
	got, err := r.FSRF32(testSignalID, 0, out)
	require.NoError(t, err)
	require.Equal(t, len(samples), got)
	require.Equal(t, samples, out)
}

func TestReaderFSRF32MidRangeSpansMultipleDataChunks(t *testing.T) {
	path, samples := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	start := uint64(250)
	out := make([]float32, 300)
	got, err := r.FSRF32(testSignalID, start, out)
	require.NoError(t, err)
	require.Equal(t, len(out), got)
	require.Equal(t, samples[start:start+300], out)
}

func TestReaderFSRF32StatisticsAtFinestLevel(t *testing.T) {
	path, samples := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	out := make([]jlsreader.Statistics, 5)
	got, err := r.FSRF32Statistics(testSignalID, 10, 1, out)
	require.NoError(t, err)
	require.Equal(t, 5, got)
	for i, stat := range out {
		want := samples[10+i]
		require.InDelta(t, float64(want), float64(stat.Mean), 1e-3)
		require.InDelta(t, float64(want), float64(stat.Min), 1e-3)
		require.InDelta(t, float64(want), float64(stat.Max), 1e-3)
		require.InDelta(t, 0, float64(stat.Variance), 1e-3)
	}
}

func TestReaderAnnotationsInChronologicalOrder(t *testing.T) {
	path, _ := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	anns, err := r.Annotations(testSignalID)
	require.NoError(t, err)
	require.Len(t, anns, 2)
	require.Equal(t, int64(10), anns[0].Timestamp)
	require.Equal(t, "first", string(anns[0].Data))
	require.Equal(t, int64(500), anns[1].Timestamp)
	require.Equal(t, "second", string(anns[1].Data))
}

func TestReaderUserDataNextAndPrev(t *testing.T) {
	path, _ := writeTestFile(t)
	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	first, err := r.UserDataNext()
	require.NoError(t, err)
	require.Equal(t, uint16(1), first.UserField)
	require.Equal(t, []byte{0xde, 0xad}, first.Data)

	second, err := r.UserDataNext()
	require.NoError(t, err)
	require.Equal(t, uint16(2), second.UserField)

	_, err = r.UserDataNext()
	require.ErrorIs(t, err, jlserrors.ErrEmpty)

	back, err := r.UserDataPrev()
	require.NoError(t, err)
	require.Equal(t, uint16(2), back.UserField)

	back, err = r.UserDataPrev()
	require.NoError(t, err)
	require.Equal(t, uint16(1), back.UserField)

	_, err = r.UserDataPrev()
	require.ErrorIs(t, err, jlserrors.ErrEmpty)
}

func TestReaderOpenEmptyFileHasOnlyReservedSourceAndSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jls")
	w, err := jlswriter.Open(path, jlswriter.Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	// Only the reserved source 0 / signal 0 exist.
	require.Len(t, r.Sources(), 1)
	require.Len(t, r.Signals(), 1)
}

func TestReaderDuplicateSourceDefinitionRejectedAtWriteTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.jls")
	w, err := jlswriter.Open(path, jlswriter.Options{})
	require.NoError(t, err)
	require.NoError(t, w.SourceDef(jlswriter.SourceDef{SourceID: 5, Name: "a"}))
	err = w.SourceDef(jlswriter.SourceDef{SourceID: 5, Name: "b"})
	require.ErrorIs(t, err, jlserrors.ErrAlreadyExists)
	require.NoError(t, w.Close())
}

func TestReaderVSRSignalHasNoFSRSupport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vsr.jls")
	w, err := jlswriter.Open(path, jlswriter.Options{})
	require.NoError(t, err)
	require.NoError(t, w.SourceDef(jlswriter.SourceDef{SourceID: 1, Name: "src"}))
	require.NoError(t, w.SignalDef(jlswriter.SignalDef{
		SignalID:   1,
		SourceID:   1,
		SignalType: format.SignalTypeVSR,
		DataType:   format.DataTypeF32,
		Name:       "events",
	}))
	require.NoError(t, w.VSRAnnotation(1, 42, format.AnnotationType(1), format.StorageTypeString, []byte("evt")))
	require.NoError(t, w.Close())

	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.FSRLength(1)
	require.ErrorIs(t, err, jlserrors.ErrNotSupported)

	anns, err := r.Annotations(1)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	require.Equal(t, int64(42), anns[0].Timestamp)
}

func TestReaderOpenTruncatedFileStillSucceedsWithPartialScan(t *testing.T) {
	path, _ := writeTestFile(t)

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	truncatedPath := filepath.Join(t.TempDir(), "truncated.jls")
	require.NoError(t, os.WriteFile(truncatedPath, full[:len(full)/2], 0o644))

	r, err := jlsreader.Open(truncatedPath, jlsreader.Options{})
	require.NoError(t, err, "a truncated file must still open, with whatever was scanned before the cutoff")
	defer r.Close()
}

func TestReaderDetectsCorruptedTopIndexChunk(t *testing.T) {
	// A dedicated, minimal file whose very last bytes on disk are the FSR
	// track's summary+index chunk pairs that Close flushes up to the top
	// level (no annotations or user data trailing them). The last 40 bytes
	// cover the tail of the top-level index chunk's header, its payload and
	// its payload CRC — the first chunk FSRF32's seek reads.
	path := filepath.Join(t.TempDir(), "corrupt.jls")
	w, err := jlswriter.Open(path, jlswriter.Options{})
	require.NoError(t, err)
	require.NoError(t, w.SourceDef(jlswriter.SourceDef{SourceID: testSourceID, Name: "bench"}))
	require.NoError(t, w.SignalDef(jlswriter.SignalDef{
		SignalID:              testSignalID,
		SourceID:              testSourceID,
		SignalType:            format.SignalTypeFSR,
		DataType:              format.DataTypeF32,
		SampleRate:            1000,
		SamplesPerData:        testSamplesPerData,
		SampleDecimateFactor:  testSampleDecimate,
		EntriesPerSummary:     testEntriesPerSummary,
		SummaryDecimateFactor: testSummaryDecimate,
	}))
	samples := make([]float32, testSampleCount)
	for i := range samples {
		samples[i] = float32(i)
	}
	require.NoError(t, w.FSRF32(testSignalID, 0, samples))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := len(data) - 1; i >= len(data)-40; i-- {
		data[i] ^= 0xff
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := jlsreader.Open(path, jlsreader.Options{})
	require.NoError(t, err)
	defer r.Close()

	out := make([]float32, testSampleCount)
	_, err = r.FSRF32(testSignalID, 0, out)
	require.Error(t, err, "reading through corrupted bytes must surface an error, not silently return bad samples")
	require.True(t, errors.Is(err, jlserrors.ErrCrcPayload) || errors.Is(err, jlserrors.ErrCrcHeader) || errors.Is(err, jlserrors.ErrIO),
		"expected a CRC or IO error, got %v", err)
}
