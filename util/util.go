package util

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

func Uint64ToBytes(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func BytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func Uint32ToBytes(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}

func BytesToUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func FileExists(path string) bool {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false
	}
	return true
}

func WriteJsonFile[T any](path string, obj *T) error {
	b, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	return os.WriteFile(path, b, 0600)
}

func ReadJsonFile[T any](path string, obj *T) (*T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s failed: %w", path, err)
	}
	if err := json.Unmarshal(b, obj); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return obj, nil
}
