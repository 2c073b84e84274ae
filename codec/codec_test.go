package codec_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-event-provider/codec"
)

var nineBytes = []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want codec.Payload
	}{
		{
			name: "string passes through",
			in:   "hello",
			want: codec.Payload{Kind: codec.KindString, Body: "hello", ContentType: codec.ContentTypeText},
		},
		{
			name: "object becomes json",
			in:   map[string]int{"a": 1},
			want: codec.Payload{Kind: codec.KindJSON, Body: `{"a":1}`, ContentType: codec.ContentTypeJSON},
		},
		{
			name: "struct becomes json",
			in: struct {
				Test string `json:"test"`
				Foo  string `json:"foo"`
			}{"obj", "bar"},
			want: codec.Payload{Kind: codec.KindJSON, Body: `{"test":"obj","foo":"bar"}`, ContentType: codec.ContentTypeJSON},
		},
		{
			name: "bytes become base64",
			in:   nineBytes,
			want: codec.Payload{Kind: codec.KindBuffer, Body: "AQIDBAUGBwgJ", ContentType: codec.ContentTypeBinary},
		},
		{
			name: "raw json kept verbatim",
			in:   json.RawMessage(`{"x": [1,2]}`),
			want: codec.Payload{Kind: codec.KindJSON, Body: `{"x": [1,2]}`, ContentType: codec.ContentTypeJSON},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Unserializable(t *testing.T) {
	_, err := codec.Encode(make(chan int))
	require.Error(t, err)

	_, err = codec.Encode(json.RawMessage(`{`))
	require.Error(t, err)
}

func TestDecode_WithoutContentType(t *testing.T) {
	t.Run("plain string", func(t *testing.T) {
		assert.Equal(t, "test message", codec.Decode("test message", "", codec.DecodeOptions{}))
	})

	t.Run("json object is parsed", func(t *testing.T) {
		got := codec.Decode(`{"test":"test","foo":"bar"}`, "", codec.DecodeOptions{})
		assert.Equal(t, map[string]any{"test": "test", "foo": "bar"}, got)
	})

	t.Run("json array is parsed", func(t *testing.T) {
		got := codec.Decode(`[1, "a"]`, "", codec.DecodeOptions{})
		assert.Equal(t, []any{float64(1), "a"}, got)
	})

	t.Run("json scalars stay strings", func(t *testing.T) {
		assert.Equal(t, "42", codec.Decode("42", "", codec.DecodeOptions{}))
		assert.Equal(t, "true", codec.Decode("true", "", codec.DecodeOptions{}))
	})

	t.Run("malformed json falls back to string", func(t *testing.T) {
		assert.Equal(t, "{not json}", codec.Decode("{not json}", "", codec.DecodeOptions{}))
	})

	t.Run("base64 only with expect binary", func(t *testing.T) {
		assert.Equal(t, "AQIDBAUGBwgJ", codec.Decode("AQIDBAUGBwgJ", "", codec.DecodeOptions{}))
		assert.Equal(t, nineBytes, codec.Decode("AQIDBAUGBwgJ", "", codec.DecodeOptions{ExpectBinary: true}))
	})

	t.Run("expect binary falls back on invalid base64", func(t *testing.T) {
		assert.Equal(t, "test message", codec.Decode("test message", "", codec.DecodeOptions{ExpectBinary: true}))
	})
}

func TestDecode_ContentTypeIsAuthoritative(t *testing.T) {
	assert.Equal(t, nineBytes, codec.Decode("AQIDBAUGBwgJ", codec.ContentTypeBinary, codec.DecodeOptions{}))
	assert.Equal(t, `{"a":1}`, codec.Decode(`{"a":1}`, "text/plain; charset=utf-8", codec.DecodeOptions{}))
	assert.Equal(t, map[string]any{"a": float64(1)}, codec.Decode(`{"a":1}`, "Application/JSON", codec.DecodeOptions{}))
	assert.Equal(t, "%%%", codec.Decode("%%%", codec.ContentTypeBinary, codec.DecodeOptions{}))
	assert.Equal(t, "oops", codec.Decode("oops", codec.ContentTypeJSON, codec.DecodeOptions{}))
}

func TestRoundTrip_WireStable(t *testing.T) {
	for _, in := range []any{"hello", nineBytes, []byte{}} {
		first, err := codec.Encode(in)
		require.NoError(t, err)

		second, err := codec.Encode(codec.Decode(first.Body, first.ContentType, codec.DecodeOptions{}))
		require.NoError(t, err)
		assert.Equal(t, first.Body, second.Body)
	}
}

func TestRoundTrip_ObjectStructural(t *testing.T) {
	in := map[string]any{"a": float64(1), "nested": map[string]any{"b": []any{"x", true}}}

	p, err := codec.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in, codec.Decode(p.Body, "", codec.DecodeOptions{}))
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"string that looks like json", `{"a":1}`, `{"a":1}`},
		{"string that looks like base64", "AQIDBAUGBwgJ", "AQIDBAUGBwgJ"},
		{"object", map[string]any{"a": float64(1)}, map[string]any{"a": float64(1)}},
		{"bytes", nineBytes, nineBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := codec.EncodeTyped(tt.in)
			require.NoError(t, err)
			assert.Equal(t, codec.ContentTypeEnvelope, p.ContentType)

			assert.Equal(t, tt.want, codec.Decode(p.Body, p.ContentType, codec.DecodeOptions{}))
			assert.Equal(t, tt.want, codec.Decode(p.Body, "", codec.DecodeOptions{Typed: true}))
		})
	}
}

func TestUnwrap_Rejects(t *testing.T) {
	_, ok := codec.Unwrap(`{"kind":"weird","body":"x"}`)
	assert.False(t, ok)

	_, ok = codec.Unwrap("plain")
	assert.False(t, ok)

	assert.Equal(t, "plain", codec.Decode("plain", "", codec.DecodeOptions{Typed: true}))
}
