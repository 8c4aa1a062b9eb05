package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type typedUser struct {
	ID   string
	Name string
}

type typedOrder struct {
	ID    string
	Total int
}

func TestTypedRoundTrip(t *testing.T) {
	reg := NewTyped().
		Register("user", typedUser{}).
		Register("order", typedOrder{})

	u := typedUser{ID: "u1", Name: "ada"}
	b, err := reg.Encode(u)
	require.NoError(t, err)

	got, err := reg.Decode(b)
	require.NoError(t, err)
	require.Equal(t, u, got)

	o := typedOrder{ID: "o1", Total: 42}
	b, err = reg.Encode(o)
	require.NoError(t, err)

	got, err = reg.Decode(b)
	require.NoError(t, err)
	require.Equal(t, o, got)
}

func TestTypedEncodeUnregisteredType(t *testing.T) {
	reg := NewTyped().Register("user", typedUser{})
	_, err := reg.Encode(typedOrder{ID: "o1"})
	require.Error(t, err)
}

func TestTypedDecodeUnknownTag(t *testing.T) {
	reg := NewTyped().Register("user", typedUser{})
	other := NewTyped().Register("order", typedOrder{})

	b, err := other.Encode(typedOrder{ID: "o1"})
	require.NoError(t, err)

	_, err = reg.Decode(b)
	require.Error(t, err)
}

func TestTypedRegisterConflictPanics(t *testing.T) {
	reg := NewTyped().Register("user", typedUser{})
	require.Panics(t, func() {
		reg.Register("user", typedOrder{})
	})
}
