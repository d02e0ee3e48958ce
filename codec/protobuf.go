package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var errNilMessage = errors.New("codec: nil proto message")

// Protobuf stores proto messages in their binary wire form. newMsg returns an
// empty message to decode into, e.g. func() *pb.User { return new(pb.User) }.
type Protobuf[T proto.Message] struct {
	newMsg func() T
	opts   proto.MarshalOptions
}

// NewProtobuf uses deterministic marshaling so equal messages produce equal bytes.
func NewProtobuf[T proto.Message](newMsg func() T) Protobuf[T] {
	return Protobuf[T]{newMsg: newMsg, opts: proto.MarshalOptions{Deterministic: true}}
}

func (p Protobuf[T]) Encode(v T) ([]byte, error) {
	if !v.ProtoReflect().IsValid() {
		return nil, errNilMessage
	}
	return p.opts.Marshal(v)
}

func (p Protobuf[T]) Decode(b []byte) (T, error) {
	m := p.newMsg()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
