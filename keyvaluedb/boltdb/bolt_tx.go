package boltdb

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/crossbill-org/crossbill/keyvaluedb"
)

var errTxClosed = errors.New("tx closed")

// BoltTx is a read-write transaction over BoltDB.
type BoltTx struct {
	tx      *bolt.Tx
	bucket  []byte
	encoder EncodeFn
	decoder DecodeFn
	closed  bool
}

func NewBoltTx(db *bolt.DB, bucket []byte, e EncodeFn, d DecodeFn) (*BoltTx, error) {
	if db == nil {
		return nil, fmt.Errorf("bolt db is nil")
	}
	tx, err := db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to start tx, %w", err)
	}
	return &BoltTx{tx: tx, bucket: bucket, encoder: e, decoder: d}, nil
}

func (t *BoltTx) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if t.closed {
		return false, errTxClosed
	}
	data := t.tx.Bucket(t.bucket).Get(key)
	if data == nil {
		return false, nil
	}
	if err := t.decoder(data, v); err != nil {
		return true, fmt.Errorf("bolt tx read failed, %w", err)
	}
	return true, nil
}

func (t *BoltTx) Write(key []byte, v any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	if t.closed {
		return errTxClosed
	}
	b, err := t.encoder(v)
	if err != nil {
		return err
	}
	if err := t.tx.Bucket(t.bucket).Put(key, b); err != nil {
		return fmt.Errorf("bolt tx write failed, %w", err)
	}
	return nil
}

func (t *BoltTx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.closed {
		return errTxClosed
	}
	if err := t.tx.Bucket(t.bucket).Delete(key); err != nil {
		return fmt.Errorf("bolt tx delete failed, %w", err)
	}
	return nil
}

func (t *BoltTx) Commit() error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *BoltTx) Rollback() error {
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	return t.tx.Rollback()
}
