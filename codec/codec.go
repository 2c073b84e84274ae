package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the application-level shape of a payload.
type Kind string

const (
	KindString Kind = "string"
	KindJSON   Kind = "json"
	KindBuffer Kind = "buffer"
)

// Content types attached to encoded payloads.
const (
	ContentTypeText     = "text/plain"
	ContentTypeJSON     = "application/json"
	ContentTypeBinary   = "application/octet-stream"
	ContentTypeEnvelope = "application/vnd.scg.envelope+json"
)

// Payload is an encoded value ready for the wire.
type Payload struct {
	Kind        Kind
	Body        string
	ContentType string
}

// DecodeOptions tunes type recovery for deliveries without a content type.
type DecodeOptions struct {
	ExpectBinary bool
	Typed        bool
}

// Encode converts v to its wire form.
func Encode(v any) (Payload, error) {
	switch x := v.(type) {
	case []byte:
		return Payload{Kind: KindBuffer, Body: base64.StdEncoding.EncodeToString(x), ContentType: ContentTypeBinary}, nil
	case string:
		return Payload{Kind: KindString, Body: x, ContentType: ContentTypeText}, nil
	case json.RawMessage:
		if !json.Valid(x) {
			return Payload{}, fmt.Errorf("codec encode %T: invalid json", v)
		}

		return Payload{Kind: KindJSON, Body: string(x), ContentType: ContentTypeJSON}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("codec encode %T: %w", v, err)
	}

	return Payload{Kind: KindJSON, Body: string(b), ContentType: ContentTypeJSON}, nil
}

// EncodeTyped encodes v and wraps the result in a kind-tagged envelope.
func EncodeTyped(v any) (Payload, error) {
	p, err := Encode(v)
	if err != nil {
		return Payload{}, err
	}

	return Wrap(p)
}

// Decode recovers an application value from a wire string.
// The result is a string, a []byte, or whatever encoding/json produces for any.
func Decode(body, contentType string, o DecodeOptions) any {
	switch mediaType(contentType) {
	case ContentTypeEnvelope:
		if v, ok := unwrap(body); ok {
			return v
		}

		return body
	case ContentTypeBinary:
		return decodeBinary(body)
	case ContentTypeJSON:
		if v, ok := parseJSON(body); ok {
			return v
		}

		return body
	case ContentTypeText:
		return body
	}

	if o.Typed {
		if v, ok := unwrap(body); ok {
			return v
		}
	}

	if o.ExpectBinary {
		if b, err := base64.StdEncoding.Strict().DecodeString(body); err == nil {
			return b
		}
	}

	if looksLikeJSON(body) {
		if v, ok := parseJSON(body); ok {
			return v
		}
	}

	return body
}

func decodeBinary(body string) any {
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return body
	}

	return b
}

func parseJSON(body string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, false
	}

	return v, true
}

// looksLikeJSON restricts inference to objects and arrays so that plain strings
// such as "true" or "42" stay strings.
func looksLikeJSON(body string) bool {
	s := strings.TrimSpace(body)
	if len(s) < 2 {
		return false
	}

	return (s[0] == '{' && s[len(s)-1] == '}') || (s[0] == '[' && s[len(s)-1] == ']')
}

func mediaType(ct string) string {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
