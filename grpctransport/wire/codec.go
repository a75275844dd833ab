package wire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec replaces grpc-go's default protobuf codec with a JSON
// encoding, registered under the same name ("proto") the default codec
// uses. Because this package imports google.golang.org/grpc/encoding,
// Go's import-order init guarantee means grpc-go's own
// "proto" codec registration (pulled in transitively through
// google.golang.org/grpc) has already run by the time this init fires, so
// this registration wins and every call through grpc.Dial/grpc.NewServer
// in this module uses it without further configuration.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "proto"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
