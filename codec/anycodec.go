package codec

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// AnyCodec is Codec's type-erased counterpart, for callers that only
// learn the concrete value type at their own call site rather than at
// the codec's. hycache.Options.Codec is exactly this case: one
// HybridCache serves Get[T]/Set[T] for whatever T each caller names, so
// the codec it holds cannot be a Codec[T] for any single T.
//
// Unmarshal takes a pointer rather than returning V, on purpose:
// implementations decode straight into the caller's *T by reflection,
// the same way encoding/json.Unmarshal does. Decoding into a bare `any`
// (what a Codec[any] would require) loses the target type entirely and
// produces a generic map rather than the caller's original struct.
type AnyCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgpackAny is the AnyCodec built on vmihailenco/msgpack/v5. The zero
// value is ready to use.
type MsgpackAny struct{}

func (MsgpackAny) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackAny) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// JSONAny is the AnyCodec built on encoding/json. The zero value is
// ready to use.
type JSONAny struct{}

func (JSONAny) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONAny) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CBORAny is the AnyCodec built on fxamacker/cbor/v2. The zero value is
// not ready to use; construct with NewCBORAny.
type CBORAny struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORAny mirrors NewCBOR's deterministic/non-deterministic choice.
func NewCBORAny(deterministic bool) (CBORAny, error) {
	c, err := NewCBOR[any](deterministic)
	if err != nil {
		return CBORAny{}, err
	}
	return CBORAny{enc: c.enc, dec: c.dec}, nil
}

func (c CBORAny) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c CBORAny) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

var (
	_ AnyCodec = MsgpackAny{}
	_ AnyCodec = JSONAny{}
	_ AnyCodec = CBORAny{}
)
