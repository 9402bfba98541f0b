package types

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

type cborHandler struct{}

/*
Cbor is the codec for all wire records (outgoing call batches, proofs,
persisted registry and checkpoint entries). Encoding is deterministic so
digests over encoded records are stable across independent builds.
*/
var Cbor = cborHandler{}

var cborEncMode = func() cbor.EncMode {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("creating CBOR encoding mode: " + err.Error())
	}
	return encMode
}()

func (cborHandler) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (cborHandler) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (cborHandler) Encode(w io.Writer, v any) error {
	return cborEncMode.NewEncoder(w).Encode(v)
}

func (cborHandler) Decode(r io.Reader, v any) error {
	return cbor.NewDecoder(r).Decode(v)
}

func (cborHandler) GetEncoder(w io.Writer) (*cbor.Encoder, error) {
	return cborEncMode.NewEncoder(w), nil
}

func (cborHandler) GetDecoder(r io.Reader) *cbor.Decoder {
	return cbor.NewDecoder(r)
}
