package keyvaluedb

import (
	"errors"
)

type (
	// Iterator iterates over database contents in key order. The iterator
	// must be closed after use, otherwise the read transaction it holds
	// keeps blocking writers.
	Iterator interface {
		Valid() bool
		Next()
		Prev()
		Key() []byte
		Value(v any) error
		Close() error
	}

	// DBTransaction is a read-write transaction. It must be finished with
	// either Commit or Rollback.
	DBTransaction interface {
		Read(key []byte, v any) (bool, error)
		Write(key []byte, v any) error
		Delete(key []byte) error
		Commit() error
		Rollback() error
	}

	// KeyValueDB is a generic key-value database interface. Values are
	// serialized with the codec of the concrete implementation.
	KeyValueDB interface {
		Read(key []byte, v any) (bool, error)
		Write(key []byte, v any) error
		Delete(key []byte) error
		First() Iterator
		Last() Iterator
		Find(key []byte) Iterator
		StartTx() (DBTransaction, error)
		Close() error
	}
)

var (
	ErrEmptyKey = errors.New("key is empty")
	ErrNilValue = errors.New("value is nil")
)

func CheckKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

func CheckKeyAndValue(key []byte, v any) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if v == nil {
		return ErrNilValue
	}
	return nil
}
