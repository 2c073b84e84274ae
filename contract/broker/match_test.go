package broker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		kind, pattern, key string
		want               bool
	}{
		{"topic", "#", "queue", true},
		{"topic", "#", "", true},
		{"topic", "#", "a.b.c", true},
		{"topic", "a.*", "a.b", true},
		{"topic", "a.*", "a.b.c", false},
		{"topic", "a.#", "a", true},
		{"topic", "a.#.c", "a.x.y.c", true},
		{"topic", "*.b", "a.b", true},
		{"topic", "*.b", "b", false},
		{"topic", "a.b", "a.c", false},
		{"direct", "queue", "queue", true},
		{"direct", "#", "queue", false},
		{"fanout", "ignored", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.pattern+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, cbroker.Match(tt.kind, tt.pattern, tt.key))
		})
	}
}
