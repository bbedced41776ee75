package protocol

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Binding is one managed variable: a dotted name and its value. On read
// requests the value is nil; on replies the agent fills it in.
type Binding struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// PDU is the unit the client and agent exchange inside an envelope
// payload. RequestID mirrors the header field so a PDU is self-describing
// after decode.
type PDU struct {
	RequestID  uint32    `json:"request_id"`
	Type       uint8     `json:"type"`
	ErrorCode  uint8     `json:"error_code,omitempty"`
	ErrorIndex uint8     `json:"error_index,omitempty"`
	Bindings   []Binding `json:"bindings,omitempty"`
}

// NewGet builds a read request for the named variables.
func NewGet(names ...string) *PDU {
	p := &PDU{Type: MsgGet}
	for _, n := range names {
		p.Bindings = append(p.Bindings, Binding{Name: n})
	}
	return p
}

// NewGetNext builds a successor read request for the named variables.
func NewGetNext(names ...string) *PDU {
	p := NewGet(names...)
	p.Type = MsgGetNext
	return p
}

// NewSet builds a write request for the given bindings.
func NewSet(bindings ...Binding) *PDU {
	return &PDU{Type: MsgSet, Bindings: bindings}
}

// NewReport builds the agent reply to request id with the given bindings.
func NewReport(requestID uint32, bindings ...Binding) *PDU {
	return &PDU{Type: MsgReport, RequestID: requestID, Bindings: bindings}
}

// Binding returns the binding with the given name, or nil.
func (p *PDU) Binding(name string) *Binding {
	for i := range p.Bindings {
		if p.Bindings[i].Name == name {
			return &p.Bindings[i]
		}
	}
	return nil
}

// ToStruct converts the PDU to a structpb.Struct so it can travel through
// the protobuf codec. Binding values must be JSON-compatible.
func (p *PDU) ToStruct() (*structpb.Struct, error) {
	bindings := make([]any, 0, len(p.Bindings))
	for _, b := range p.Bindings {
		bindings = append(bindings, map[string]any{"name": b.Name, "value": b.Value})
	}
	return structpb.NewStruct(map[string]any{
		"request_id":  float64(p.RequestID),
		"type":        float64(p.Type),
		"error_code":  float64(p.ErrorCode),
		"error_index": float64(p.ErrorIndex),
		"bindings":    bindings,
	})
}

// PDUFromStruct is the inverse of ToStruct.
func PDUFromStruct(s *structpb.Struct) (*PDU, error) {
	if s == nil {
		return nil, fmt.Errorf("nil struct")
	}
	m := s.AsMap()
	p := &PDU{}
	if v, ok := m["request_id"].(float64); ok {
		p.RequestID = uint32(v)
	}
	if v, ok := m["type"].(float64); ok {
		p.Type = uint8(v)
	}
	if v, ok := m["error_code"].(float64); ok {
		p.ErrorCode = uint8(v)
	}
	if v, ok := m["error_index"].(float64); ok {
		p.ErrorIndex = uint8(v)
	}
	if bs, ok := m["bindings"].([]any); ok {
		for _, raw := range bs {
			bm, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("malformed binding: %T", raw)
			}
			b := Binding{}
			if n, ok := bm["name"].(string); ok {
				b.Name = n
			}
			b.Value = bm["value"]
			p.Bindings = append(p.Bindings, b)
		}
	}
	return p, nil
}
