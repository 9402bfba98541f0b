package util

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConverter(t *testing.T) {
	t.Parallel()
	cases := []struct {
		targetName string
		byteVal    []byte
		uint64Val  uint64
		uint32Val  uint32
	}{
		{targetName: "Uint64ToBytes", byteVal: []byte{0, 0, 0, 0, 0, 0, 0, 0}, uint64Val: uint64(0)},
		{targetName: "Uint64ToBytes", byteVal: []byte{0, 0, 0, 0, 0, 0, 0, 1}, uint64Val: uint64(1)},
		{targetName: "Uint64ToBytes", byteVal: []byte{255, 255, 255, 255, 255, 255, 255, 255}, uint64Val: math.MaxUint64},
		{targetName: "BytesToUint64", byteVal: []byte{1, 0, 0, 0, 0, 0, 0, 0}, uint64Val: uint64(72057594037927936)},
		{targetName: "BytesToUint64", byteVal: []byte{0, 0, 0, 0, 0, 9, 9, 9}, uint64Val: uint64(592137)},
		{targetName: "Uint32ToBytes", byteVal: []byte{0, 0, 0, 1}, uint32Val: uint32(1)},
		{targetName: "BytesToUint32", byteVal: []byte{0, 9, 9, 9}, uint32Val: uint32(592137)},
	}
	for _, c := range cases {
		switch c.targetName {
		case "Uint64ToBytes":
			require.Equal(t, c.byteVal, Uint64ToBytes(c.uint64Val))
		case "BytesToUint64":
			require.EqualValues(t, c.uint64Val, BytesToUint64(c.byteVal))
		case "Uint32ToBytes":
			require.Equal(t, c.byteVal, Uint32ToBytes(c.uint32Val))
		case "BytesToUint32":
			require.Equal(t, c.uint32Val, BytesToUint32(c.byteVal))
		default:
			t.Error("unexpected test target name")
		}
	}
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testfile.txt")
	require.False(t, FileExists(path))

	type keyFile struct {
		Address string `json:"address"`
		Key     string `json:"key"`
	}
	require.NoError(t, WriteJsonFile(path, &keyFile{Address: "0x01", Key: "c0ffee"}))
	require.True(t, FileExists(path))

	out, err := ReadJsonFile(path, &keyFile{})
	require.NoError(t, err)
	require.Equal(t, "0x01", out.Address)
	require.Equal(t, "c0ffee", out.Key)
}
