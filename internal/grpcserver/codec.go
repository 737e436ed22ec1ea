package grpcserver

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype of ProcessService messages
// (application/grpc+protowire). Payloads are standard protobuf wire format;
// the separate name leaves the generated-code "proto" codec to the health
// service.
const CodecName = "protowire"

// wireMessage is implemented by every ProcessService message.
type wireMessage interface {
	appendWire(b []byte) []byte
	readWire(b []byte) error
}

type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("grpcserver: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("grpcserver: cannot unmarshal into %T", v)
	}
	return m.readWire(data)
}

func (wireCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}
