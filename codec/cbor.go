package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR stores values with fxamacker/cbor. Construct with NewCBOR or MustCBOR;
// the zero value panics.
//
// Decoded interface values use map[string]any for maps, so cached values that
// carry Args-like payloads look the same as the ones that were stored.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

type CBOROptions struct {
	// Deterministic uses RFC 8949 core deterministic encoding, the same form
	// keys are derived from. Otherwise maps are written unsorted.
	Deterministic bool
	// MaxNestedLevels bounds decoding depth. 0 => library default (32).
	MaxNestedLevels int
}

func NewCBOR[V any](opts CBOROptions) (CBOR[V], error) {
	var eo cbor.EncOptions
	if opts.Deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: opts.MaxNestedLevels,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func MustCBOR[V any](opts CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
