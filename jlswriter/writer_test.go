package jlswriter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

func openTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.jls")
	w, err := Open(path, Options{})
	require.NoError(t, err)
	return w, path
}

func TestOpenDefinesReservedSourceAndSignalZero(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	require.NotNil(t, w.sources[0])
	require.Equal(t, "global_annotation_source", w.sources[0].Name)
	require.NotNil(t, w.signals[0])
	require.Equal(t, format.SignalTypeVSR, w.signals[0].def.SignalType)
}

func TestSourceDefRejectsDuplicateID(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "a"}))
	err := w.SourceDef(SourceDef{SourceID: 1, Name: "b"})
	require.ErrorIs(t, err, jlserrors.ErrAlreadyExists)
}

func TestSourceDefRejectsAlreadyReservedZero(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	err := w.SourceDef(SourceDef{SourceID: 0, Name: "dup"})
	require.ErrorIs(t, err, jlserrors.ErrAlreadyExists)
}

func TestSignalDefRequiresDefinedSource(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	err := w.SignalDef(SignalDef{
		SignalID:       1,
		SourceID:       99,
		SignalType:     format.SignalTypeFSR,
		DataType:       format.DataTypeF32,
		SampleRate:     1000,
		SamplesPerData: 1024,
	})
	require.ErrorIs(t, err, jlserrors.ErrParameterInvalid)
}

func TestSignalDefRejectsUnsupportedDataType(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))

	err := w.SignalDef(SignalDef{
		SignalID:   1,
		SourceID:   1,
		SignalType: format.SignalTypeFSR,
		DataType:   format.DataType(99),
	})
	require.ErrorIs(t, err, jlserrors.ErrNotSupported)
}

func TestSignalDefFSRRequiresSampleRate(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))

	err := w.SignalDef(SignalDef{
		SignalID:       1,
		SourceID:       1,
		SignalType:     format.SignalTypeFSR,
		DataType:       format.DataTypeF32,
		SamplesPerData: 1024,
	})
	require.ErrorIs(t, err, jlserrors.ErrParameterInvalid)
}

func TestSignalDefVSRForcesSampleRateToZero(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))

	require.NoError(t, w.SignalDef(SignalDef{
		SignalID:   1,
		SourceID:   1,
		SignalType: format.SignalTypeVSR,
		DataType:   format.DataTypeF32,
		SampleRate: 500,
	}))
	require.Equal(t, uint32(0), w.signals[1].def.SampleRate)
}

func TestSignalDefClampsCascadeFactorsToMinimums(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))

	require.NoError(t, w.SignalDef(SignalDef{
		SignalID:              1,
		SourceID:              1,
		SignalType:            format.SignalTypeFSR,
		DataType:              format.DataTypeF32,
		SampleRate:            1000,
		SamplesPerData:        64,
		SummaryDecimateFactor: 2,
		EntriesPerSummary:     5,
	}))
	require.Equal(t, uint32(format.SummaryDecimateFactorMin), w.signals[1].def.SummaryDecimateFactor)
	require.Equal(t, uint32(format.EntriesPerSummaryMin), w.signals[1].def.EntriesPerSummary)
}

func TestSignalDefDefinesExpectedTracks(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))

	require.NoError(t, w.SignalDef(SignalDef{
		SignalID:       1,
		SourceID:       1,
		SignalType:     format.SignalTypeFSR,
		DataType:       format.DataTypeF32,
		SampleRate:     1000,
		SamplesPerData: 64,
	}))
	ss := w.signals[1]
	require.Contains(t, ss.tracks, format.TrackTypeFSR)
	require.Contains(t, ss.tracks, format.TrackTypeAnnotation)
	require.Contains(t, ss.tracks, format.TrackTypeUTC)
	require.NotContains(t, ss.tracks, format.TrackTypeVSR)
	require.NotNil(t, ss.cascade)
}

func TestUserDataRejectsMismatchedStorageType(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	err := w.UserData(1, format.StorageTypeInvalid, []byte("nonempty"))
	require.ErrorIs(t, err, jlserrors.ErrParameterInvalid)
}

func TestUserDataAcceptsBinaryAndString(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()

	require.NoError(t, w.UserData(1, format.StorageTypeBinary, []byte{0x01, 0x02}))
	require.NoError(t, w.UserData(2, format.StorageTypeString, []byte("hello")))
}

func TestCloseIsIdempotent(t *testing.T) {
	w, _ := openTestWriter(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestFSRF32RejectsNonFSRSignal(t *testing.T) {
	w, _ := openTestWriter(t)
	defer w.Close()
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "src"}))
	require.NoError(t, w.SignalDef(SignalDef{
		SignalID:   1,
		SourceID:   1,
		SignalType: format.SignalTypeVSR,
		DataType:   format.DataTypeF32,
	}))

	err := w.FSRF32(1, 0, []float32{1, 2, 3})
	require.ErrorIs(t, err, jlserrors.ErrNotSupported)
}
