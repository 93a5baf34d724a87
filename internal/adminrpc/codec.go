package adminrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec name. Registered with encoding.RegisterCodec so grpc's
// content-subtype negotiation can find it, and forced server-side via
// grpc.ForceServerCodec so every message on this server marshals as
// JSON rather than protobuf wire format.
const codecName = "json"

// jsonCodec lets the admin RPC surface speak gRPC without a protoc
// toolchain: request/response types are plain Go structs (see
// messages.go), not generated proto.Message implementations. grpc-go's
// codec interface only needs Marshal/Unmarshal against interface{}, so
// encoding/json satisfies it directly.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec is the codec the admin RPC server's gRPC listener must be
// configured with via grpc.ForceServerCodec, since these messages
// aren't proto.Message implementations.
var Codec = jsonCodec{}
