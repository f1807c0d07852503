package blob

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
)

func openDB(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open(t.TempDir(), &pebble.Options{})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInlineRoundtrip(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)

	payload := []byte("small payload")
	value, err := store.Write(db, payload)
	assert.NoError(t, err)
	assert.False(t, IsRef(value))
	assert.Len(t, value, len(payload)+1)

	got, err := store.Read(db, value)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSpillRoundtrip(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)

	payload := bytes.Repeat([]byte("x"), MaxInlineLen+1)
	value, err := store.Write(db, payload)
	assert.NoError(t, err)
	assert.True(t, IsRef(value))
	assert.Len(t, value, refLen)

	got, err := store.Read(db, value)
	assert.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadMissingBlob(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)

	payload := bytes.Repeat([]byte("y"), MaxInlineLen*2)
	value, err := store.Write(db, payload)
	assert.NoError(t, err)

	assert.NoError(t, store.Clear(db, value))
	_, err = store.Read(db, value)
	assert.Error(t, err)
}

func TestChecksumMismatch(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)

	payload := bytes.Repeat([]byte("z"), MaxInlineLen+10)
	value, err := store.Write(db, payload)
	assert.NoError(t, err)

	// Corrupt the spilled payload behind the reference.
	id, _, _, err := parseRef(value)
	assert.NoError(t, err)
	assert.NoError(t, db.Set(blobKey(id), []byte("tampered"), pebble.Sync))

	_, err = store.Read(db, value)
	assert.Error(t, err)
}

func TestClearInlineIsNoop(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)
	value, err := store.Write(db, []byte("tiny"))
	assert.NoError(t, err)
	assert.NoError(t, store.Clear(db, value))
	got, err := store.Read(db, value)
	assert.NoError(t, err)
	assert.Equal(t, []byte("tiny"), got)
}

func TestLazyDecodesOnce(t *testing.T) {
	db := openDB(t)
	store := NewStore(db, pebble.Sync)

	payload := bytes.Repeat([]byte("w"), MaxInlineLen*3)
	value, err := store.Write(db, payload)
	assert.NoError(t, err)

	lz := NewLazy(store, db, value)
	assert.Equal(t, value, lz.Raw())
	_, err = lz.Get()
	assert.Error(t, err) // payload is not valid document TLV

	// Cached: deleting the blob does not change the answer.
	assert.NoError(t, store.Clear(db, value))
	_, err2 := lz.Get()
	assert.Equal(t, err, err2)
}
