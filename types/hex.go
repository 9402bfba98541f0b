package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bytes is a byte slice which JSON/text marshals into "0x" prefixed hex.
type Bytes []byte

func (b Bytes) MarshalText() ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]byte, 2+hex.EncodedLen(len(b)))
	copy(out, "0x")
	hex.Encode(out[2:], b)
	return out, nil
}

func (b *Bytes) UnmarshalText(src []byte) error {
	if len(src) == 0 {
		*b = nil
		return nil
	}
	s := strings.TrimPrefix(strings.TrimPrefix(string(src), "0x"), "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex string %q: %w", src, err)
	}
	*b = decoded
	return nil
}
