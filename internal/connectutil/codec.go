package connectutil

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec marshals plain Go structs with encoding/json. Connect's
// built-in JSON codec only accepts protobuf messages.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Unmarshal(data []byte, msg any) error { return json.Unmarshal(data, msg) }

// WithJSON registers JSONCodec on a handler or client.
func WithJSON() connect.Option { return connect.WithCodec(JSONCodec{}) }
