package broker

import "strings"

// Match reports whether routingKey matches pattern for an exchange of the given kind.
// Topic patterns use AMQP semantics: words are dot separated, "*" matches exactly one
// word and "#" matches zero or more words.
func Match(kind, pattern, routingKey string) bool {
	switch kind {
	case "fanout":
		return true
	case "direct":
		return pattern == routingKey
	default:
		return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
	}
}

func matchWords(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}

	switch p[0] {
	case "#":
		for i := 0; i <= len(k); i++ {
			if matchWords(p[1:], k[i:]) {
				return true
			}
		}

		return false
	case "*":
		return len(k) > 0 && matchWords(p[1:], k[1:])
	default:
		return len(k) > 0 && p[0] == k[0] && matchWords(p[1:], k[1:])
	}
}
