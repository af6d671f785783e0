package dispatch

import "fmt"

// Kind identifies a dispatch backend. The set is closed: configuration must
// name one of these exactly.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindLocal  Kind = "local"
)

// ParseKind validates a backend selector from configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOpenAI, KindLocal:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend %q (valid backends: openai, local)", s)
	}
}
