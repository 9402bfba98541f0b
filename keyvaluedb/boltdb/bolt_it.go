package boltdb

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Itr holds a read transaction open until Close is called.
type Itr struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	decoder DecodeFn
	key     []byte
	value   []byte
	err     error
}

func NewIterator(db *bolt.DB, bucket []byte, d DecodeFn) *Itr {
	it := &Itr{decoder: d}
	if db == nil {
		it.err = fmt.Errorf("bolt db is nil")
		return it
	}
	tx, err := db.Begin(false)
	if err != nil {
		it.err = fmt.Errorf("failed to start read tx, %w", err)
		return it
	}
	it.tx = tx
	it.cursor = tx.Bucket(bucket).Cursor()
	return it
}

func (it *Itr) first() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.First()
}

func (it *Itr) last() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Last()
}

func (it *Itr) seek(key []byte) {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Seek(key)
}

func (it *Itr) Valid() bool {
	return it.key != nil && it.err == nil
}

func (it *Itr) Next() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Next()
}

func (it *Itr) Prev() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Prev()
}

func (it *Itr) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

func (it *Itr) Value(v any) error {
	if it.err != nil {
		return it.err
	}
	if !it.Valid() {
		return fmt.Errorf("iterator is not valid")
	}
	return it.decoder(it.value, v)
}

func (it *Itr) Close() error {
	it.key = nil
	it.value = nil
	it.cursor = nil
	if it.tx == nil {
		return nil
	}
	tx := it.tx
	it.tx = nil
	return tx.Rollback()
}
