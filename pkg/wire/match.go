package wire

import "strings"

// MatchTopic reports whether name is selected by patterns. With prefix set a
// pattern matches every name that starts with it, so "" matches all topics;
// otherwise names must be equal.
func MatchTopic(patterns []string, prefix bool, name string) bool {
	for _, p := range patterns {
		if prefix {
			if strings.HasPrefix(name, p) {
				return true
			}
		} else if name == p {
			return true
		}
	}
	return false
}
