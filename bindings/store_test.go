package bindings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crossbill-org/crossbill/keyvaluedb/boltdb"
)

func newBoltDB(t *testing.T, path string) *boltdb.BoltDB {
	t.Helper()
	db, err := boltdb.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestNewStore(t *testing.T) {
	t.Run("nil db", func(t *testing.T) {
		_, err := NewStore(nil)
		require.ErrorContains(t, err, "binding store is nil")
	})

	t.Run("empty db starts at version zero", func(t *testing.T) {
		s, err := NewStore(newBoltDB(t, filepath.Join(t.TempDir(), "bindings.db")))
		require.NoError(t, err)
		e, err := s.Append(Entry{Proxy: addr(1), Counterpart: addr(0x11), RegisteredAt: 42})
		require.NoError(t, err)
		require.EqualValues(t, 0, e.Version)
		require.EqualValues(t, 42, e.RegisteredAt)
	})
}

func TestStore_AppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.db")
	db := newBoltDB(t, path)

	s, err := NewStore(db)
	require.NoError(t, err)
	for i, e := range []Entry{
		{Proxy: addr(1), Counterpart: addr(0x11), Contract: addr(0xc1), RegisteredAt: 100},
		{Proxy: addr(2), Counterpart: addr(0x22), Contract: addr(0xc1), RegisteredAt: 101},
		{Proxy: addr(1), Counterpart: addr(0x33), Contract: addr(0xc2), RegisteredAt: 102},
	} {
		stored, err := s.Append(e)
		require.NoError(t, err)
		require.EqualValues(t, i, stored.Version)
	}

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.EqualValues(t, 0, entries[0].Version)
	require.Equal(t, addr(1), entries[0].Proxy)
	require.EqualValues(t, 2, entries[2].Version)
	require.Equal(t, addr(0x33), entries[2].Counterpart)

	t.Run("registry replay is last write wins", func(t *testing.T) {
		r, err := s.LoadRegistry()
		require.NoError(t, err)
		counterpart, ok := r.Resolve(addr(1))
		require.True(t, ok)
		require.Equal(t, addr(0x33), counterpart)
		counterpart, ok = r.Resolve(addr(2))
		require.True(t, ok)
		require.Equal(t, addr(0x22), counterpart)
	})

	t.Run("reopened store continues the version sequence", func(t *testing.T) {
		reopened, err := NewStore(db)
		require.NoError(t, err)
		e, err := reopened.Append(Entry{Proxy: addr(3), Counterpart: addr(0x44)})
		require.NoError(t, err)
		require.EqualValues(t, 3, e.Version)
		require.NotZero(t, e.RegisteredAt)
	})
}
