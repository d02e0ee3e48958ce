package codec

// Bytes passes []byte values through unchanged. The provider owns the stored
// slice afterwards, so callers must not modify a value after caching it.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

func (Bytes) Decode(b []byte) ([]byte, error) {
	if b == nil {
		return []byte{}, nil
	}
	return b, nil
}

// String caches rendered text (HTML fragments, serialized responses) as its
// UTF-8 bytes.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }

func (String) Decode(b []byte) (string, error) { return string(b), nil }
