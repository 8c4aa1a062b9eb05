package codec

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Typed is a polymorphic Codec for values of static type `any`. Go has no
// runtime type tags the way a dynamically-typed source language does, so
// Typed takes approach (b) from the source's "Polymorphic decoding" note:
// a closed, caller-declared variant set. Register every concrete type you
// intend to round-trip before using the codec; Encode embeds a type tag,
// Decode looks the tag up and reconstructs the matching concrete type.
//
// The zero value is not ready to use; construct with NewTyped.
type Typed struct {
	names map[reflect.Type]string
	types map[string]reflect.Type
}

// NewTyped constructs an empty type registry.
func NewTyped() *Typed {
	return &Typed{
		names: make(map[reflect.Type]string),
		types: make(map[string]reflect.Type),
	}
}

// Register adds a concrete type to the closed variant set under name.
// zeroValue must be a non-pointer value of the concrete type (its value is
// only used to read its reflect.Type). Registering a name already bound
// to a different type, or a type already registered under a different
// name, panics - this is a programming error, not a runtime condition.
// Repeating an identical registration is a no-op.
func (t *Typed) Register(name string, zeroValue any) *Typed {
	typ := reflect.TypeOf(zeroValue)
	if typ == nil {
		panic("codec: Typed.Register: zeroValue must be non-nil")
	}
	if existing, ok := t.types[name]; ok && existing != typ {
		panic(fmt.Sprintf("codec: Typed.Register: name %q already registered for %s", name, existing))
	}
	if existing, ok := t.names[typ]; ok && existing != name {
		panic(fmt.Sprintf("codec: Typed.Register: type %s already registered under %q", typ, existing))
	}
	t.types[name] = typ
	t.names[typ] = name
	return t
}

// envelope is the wire form: a type tag plus the msgpack-encoded payload.
// Reference cycles cannot occur in the envelope itself because the payload
// is opaque bytes by the time it reaches msgpack; cycle-breaking is the
// concern of each concrete type's own marshaling, as it would be for any
// of the monomorphic codecs in this package.
type envelope struct {
	Type    string `msgpack:"type"`
	Payload []byte `msgpack:"payload"`
}

// Encode serializes v, embedding the type tag needed to reconstruct its
// concrete dynamic type on Decode. v's concrete type must have been
// registered first.
func (t *Typed) Encode(v any) ([]byte, error) {
	if v == nil {
		return msgpack.Marshal(envelope{})
	}
	typ := reflect.TypeOf(v)
	name, ok := t.names[typ]
	if !ok {
		return nil, fmt.Errorf("codec: Typed.Encode: type %s is not registered", typ)
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: Typed.Encode: %w", err)
	}
	return msgpack.Marshal(envelope{Type: name, Payload: payload})
}

// Decode reconstructs the value encoded by Encode, returning it as `any`
// with its original concrete dynamic type - the round-trip property of
// the source's Serializer contract, restricted to the registered variant
// set.
func (t *Typed) Decode(b []byte) (any, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("codec: Typed.Decode: %w", err)
	}
	if env.Type == "" {
		return nil, nil
	}
	typ, ok := t.types[env.Type]
	if !ok {
		return nil, fmt.Errorf("codec: Typed.Decode: type %q is not registered", env.Type)
	}
	ptr := reflect.New(typ)
	if err := msgpack.Unmarshal(env.Payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("codec: Typed.Decode: %w", err)
	}
	return ptr.Elem().Interface(), nil
}

var _ Codec[any] = (*Typed)(nil)
