package codec

import "encoding/json"

type jsonCodec struct{}

// JSON is the debugging-friendly codec: payloads stay readable in packet
// captures at the cost of size.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
