// Package codec encodes PDUs into envelope payloads and back. The
// content-type code in the envelope header selects the codec on the
// receiving side, so payload bytes are never sniffed.
package codec

// Codec marshals one payload value. Implementations must be
// deterministic: a retransmitted request re-encodes to the same bytes.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry resolves codecs by content type.
type Registry struct {
	byType map[string]Codec
}

// Default returns a registry holding every built-in codec. CBOR is
// skipped in the unlikely case its mode setup fails.
func Default() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	if c, err := CBOR(); err == nil {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the codec for its content type.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns the codec for contentType, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
