package agent

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Type is a closed set of agent capability tags.
// The zero value is not a valid type; use ParseType to obtain one.
type Type uint8

const (
	typeInvalid Type = iota
	CodeReview
	SecurityScan
	TestGeneration
	Documentation
	Deployment
	Monitoring
	Classification
	Assignment
	TemplateApplication
	Notification
	typeSentinel
)

// ErrUnknownType is returned when a string does not name a known agent type.
var ErrUnknownType = errors.New("unknown agent type")

var typeNames = [...]string{
	typeInvalid:         "invalid",
	CodeReview:          "code_review",
	SecurityScan:        "security_scan",
	TestGeneration:      "test_generation",
	Documentation:       "documentation",
	Deployment:          "deployment",
	Monitoring:          "monitoring",
	Classification:      "classification",
	Assignment:          "assignment",
	TemplateApplication: "template_application",
	Notification:        "notification",
}

// AllTypes returns every valid agent type in declaration order.
func AllTypes() []Type {
	types := make([]Type, 0, int(typeSentinel)-1)
	for t := typeInvalid + 1; t < typeSentinel; t++ {
		types = append(types, t)
	}
	return types
}

// ParseType maps a tag such as "code_review" (or "code-review") to its Type.
func ParseType(s string) (Type, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for t := typeInvalid + 1; t < typeSentinel; t++ {
		if typeNames[t] == norm {
			return t, nil
		}
	}
	return typeInvalid, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Valid reports whether t is one of the declared agent types.
func (t Type) Valid() bool {
	return t > typeInvalid && t < typeSentinel
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler so types serialize as tags,
// including when used as map keys.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Payload is the opaque data exchanged with a capability.
type Payload map[string]any

// Clone returns a shallow copy of p. A nil payload clones to nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Merge returns a new payload containing p overlaid with each of others in order.
func (p Payload) Merge(others ...Payload) Payload {
	out := make(Payload, len(p))
	maps.Copy(out, p)
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}
