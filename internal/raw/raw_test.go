package raw

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/jlserrors"
)

func TestOpenWriteThenReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.jls")

	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)

	off1, err := wf.Write(Header{Tag: format.TagSourceDef}, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(FileHeaderSize), off1)

	off2, err := wf.Write(Header{Tag: format.TagSignalDef, ItemPrev: uint64(off1)}, nil)
	require.NoError(t, err)
	require.Greater(t, off2, off1)

	require.NoError(t, wf.Close())

	rf, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer rf.Close()

	id, err := rf.FileID()
	require.NoError(t, err)
	require.NotEqual(t, [16]byte{}, [16]byte(id))

	require.NoError(t, rf.Seek(FileHeaderSize))

	h1, p1, err := rf.Read(4096)
	require.NoError(t, err)
	require.Equal(t, format.TagSourceDef, h1.Tag)
	require.Equal(t, []byte("hello"), p1)

	h2, p2, err := rf.Read(4096)
	require.NoError(t, err)
	require.Equal(t, format.TagSignalDef, h2.Tag)
	require.Empty(t, p2)
	require.Equal(t, uint64(off1), h2.ItemPrev)

	_, _, err = rf.Read(4096)
	require.ErrorIs(t, err, jlserrors.ErrEmpty)
}

func TestReadTooBigRetainsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toobig.jls")

	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)
	payload := make([]byte, 100)
	_, err = wf.Write(Header{Tag: format.TagUserData}, payload)
	require.NoError(t, err)
	require.NoError(t, wf.Close())

	rf, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer rf.Close()

	require.NoError(t, rf.Seek(FileHeaderSize))
	before := rf.Tell()

	_, _, err = rf.Read(10)
	var tooBig *jlserrors.TooBigError
	require.True(t, errors.As(err, &tooBig))
	require.Equal(t, uint32(100), tooBig.Required)
	require.Equal(t, before, rf.Tell(), "cursor must not advance on TooBigError")

	h, p, err := rf.Read(int(tooBig.Required))
	require.NoError(t, err)
	require.Equal(t, format.TagUserData, h.Tag)
	require.Len(t, p, 100)
}

func TestReadDetectsHeaderCRCCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badcrc.jls")

	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)
	off, err := wf.Write(Header{Tag: format.TagSourceDef}, []byte("x"))
	require.NoError(t, err)
	// Flip a byte inside the marshaled header region (tag byte) without
	// recomputing the CRC, simulating on-disk corruption.
	require.NoError(t, wf.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, off+16)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer rf.Close()
	require.NoError(t, rf.Seek(FileHeaderSize))

	_, _, err = rf.Read(4096)
	require.ErrorIs(t, err, jlserrors.ErrCrcHeader)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.jls")
	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, wf.Close())

	require.NoError(t, os.Truncate(path, FileHeaderSize-1))

	_, err = Open(path, ModeRead)
	require.ErrorIs(t, err, jlserrors.ErrIO)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badmagic.jls")
	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, wf.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{'X'}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, ModeRead)
	require.ErrorIs(t, err, jlserrors.ErrIO)
}

func TestWriteHeaderInPlacePatchesWithoutMovingTell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.jls")
	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)

	off, err := wf.Write(Header{Tag: format.TagSourceDef, ItemNext: 0}, []byte("abc"))
	require.NoError(t, err)
	tellBefore := wf.Tell()

	require.NoError(t, wf.WriteHeaderInPlace(off, Header{Tag: format.TagSourceDef, ItemNext: 999, PayloadLength: 3}))
	require.Equal(t, tellBefore, wf.Tell())
	require.NoError(t, wf.Close())

	rf, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer rf.Close()
	require.NoError(t, rf.Seek(FileHeaderSize))
	h, p, err := rf.Read(4096)
	require.NoError(t, err)
	require.Equal(t, uint64(999), h.ItemNext)
	require.Equal(t, []byte("abc"), p)
}

func TestWritePayloadInPlaceRecomputesCRC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patchpayload.jls")
	wf, err := Open(path, ModeWrite)
	require.NoError(t, err)

	off, err := wf.Write(Header{Tag: format.TagUserData}, []byte("aaaa"))
	require.NoError(t, err)
	require.NoError(t, wf.WritePayloadInPlace(off, []byte("bbbb")))
	require.NoError(t, wf.Close())

	rf, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer rf.Close()
	require.NoError(t, rf.Seek(FileHeaderSize))
	_, p, err := rf.Read(4096)
	require.NoError(t, err)
	require.Equal(t, []byte("bbbb"), p)
}
