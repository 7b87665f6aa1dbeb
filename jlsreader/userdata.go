package jlsreader

import (
	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
	"github.com/jls-format/jls/jlserrors"
)

// userDataCursor tracks the current position in the doubly-linked
// user-data list. currentOffset/currentHeader describe the chunk the
// cursor is sitting on; before the first Next call that is the sentinel
// chunk Open writes, which is never itself returned to callers.
type userDataCursor struct {
	started       bool
	currentOffset int64
	currentHeader raw.Header
	capHint       int
}

// UserDataReset rewinds user-data iteration back to the sentinel chunk,
// so the next UserDataNext call returns the first record a caller wrote
// (if any) and the next UserDataPrev call returns ErrEmpty.
func (r *Reader) UserDataReset() {
	r.userDataCursor = userDataCursor{}
}

func (r *Reader) userDataCursorInit() error {
	c := &r.userDataCursor
	if c.started {
		return nil
	}
	c.capHint = initialReadCap
	c.started = true
	if r.userDataHead == 0 {
		return nil
	}
	if err := r.raw.Seek(r.userDataHead); err != nil {
		return err
	}
	_, h, _, newCap, err := r.readChunk(c.capHint)
	c.capHint = newCap
	if err != nil {
		return err
	}
	c.currentOffset = r.userDataHead
	c.currentHeader = h
	return nil
}

func (r *Reader) readUserDataAt(offset int64, capHint int) (UserData, raw.Header, int, error) {
	if err := r.raw.Seek(offset); err != nil {
		return UserData{}, raw.Header{}, capHint, err
	}
	_, h, payload, newCap, err := r.readChunk(capHint)
	if err != nil {
		return UserData{}, raw.Header{}, newCap, err
	}
	userField, storageType := format.SplitChunkMetaUserData(h.ChunkMeta)
	return UserData{UserField: userField, StorageType: storageType, Data: payload}, h, newCap, nil
}

// UserDataNext returns the next user-data record, advancing the cursor.
// Returns ErrEmpty once the end of the list is reached.
func (r *Reader) UserDataNext() (UserData, error) {
	c := &r.userDataCursor
	if err := r.userDataCursorInit(); err != nil {
		return UserData{}, err
	}
	if r.userDataHead == 0 || c.currentHeader.ItemNext == 0 {
		return UserData{}, jlserrors.ErrEmpty
	}
	ud, h, newCap, err := r.readUserDataAt(int64(c.currentHeader.ItemNext), c.capHint)
	c.capHint = newCap
	if err != nil {
		return UserData{}, err
	}
	c.currentOffset = int64(c.currentHeader.ItemNext)
	c.currentHeader = h
	return ud, nil
}

// UserDataPrev returns the record the cursor sits on (the one the last
// UserDataNext returned, or the one before the record the last
// UserDataPrev returned) and moves the cursor back past it, so after
// reading forward to the end, repeated calls yield every record in
// reverse order. Returns ErrEmpty once back at the sentinel (the start
// of the list); the sentinel itself is never returned.
func (r *Reader) UserDataPrev() (UserData, error) {
	c := &r.userDataCursor
	if err := r.userDataCursorInit(); err != nil {
		return UserData{}, err
	}
	if r.userDataHead == 0 || c.currentOffset == r.userDataHead || c.currentHeader.ItemPrev == 0 {
		return UserData{}, jlserrors.ErrEmpty
	}
	ud, _, newCap, err := r.readUserDataAt(c.currentOffset, c.capHint)
	c.capHint = newCap
	if err != nil {
		return UserData{}, err
	}
	prevOffset := int64(c.currentHeader.ItemPrev)
	_, h, newCap, err := r.readUserDataAt(prevOffset, c.capHint)
	c.capHint = newCap
	if err != nil {
		return UserData{}, err
	}
	c.currentOffset = prevOffset
	c.currentHeader = h
	return ud, nil
}
