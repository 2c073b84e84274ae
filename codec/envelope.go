package codec

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tagged wire form used when typed payloads are enabled.
type Envelope struct {
	Kind Kind   `json:"kind"`
	Body string `json:"body"`
}

// Wrap tags an encoded payload with its kind.
func Wrap(p Payload) (Payload, error) {
	b, err := json.Marshal(Envelope{Kind: p.Kind, Body: p.Body})
	if err != nil {
		return Payload{}, fmt.Errorf("codec wrap: %w", err)
	}

	return Payload{Kind: p.Kind, Body: string(b), ContentType: ContentTypeEnvelope}, nil
}

// Unwrap decodes an envelope. ok is false when body is not a well-formed envelope.
func Unwrap(body string) (v any, ok bool) { return unwrap(body) }

func unwrap(body string) (any, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, false
	}

	switch env.Kind {
	case KindString:
		return env.Body, true
	case KindJSON:
		if v, ok := parseJSON(env.Body); ok {
			return v, true
		}

		return env.Body, true
	case KindBuffer:
		return decodeBinary(env.Body), true
	default:
		return nil, false
	}
}
