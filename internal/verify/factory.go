package verify

import (
	"fmt"
	"os"
	"strings"
)

// Factory compiles an Engine from an already-normalized wildcard pattern.
type Factory interface {
	Compile(normalizedWildcard string) (Engine, error)
}

// EnvFactory selects the verify engine implementation via the
// GZ_VERIFY_ENGINE environment variable. Only "regex" is supported today;
// any other value (or an unset variable) falls back to it, leaving room
// for an alternative backend in the future.
type EnvFactory struct {
	engine string
}

// NewEnvFactory reads GZ_VERIFY_ENGINE from the environment.
func NewEnvFactory() *EnvFactory {
	v := os.Getenv("GZ_VERIFY_ENGINE")
	if v == "" {
		v = "regex"
	}
	return &EnvFactory{engine: strings.ToLower(v)}
}

func (f *EnvFactory) Compile(normalizedWildcard string) (Engine, error) {
	switch f.engine {
	case "regex":
		fallthrough
	default:
		eng, err := CompileWildcard(normalizedWildcard)
		if err != nil {
			return nil, fmt.Errorf("verify: compile wildcard: %w", err)
		}
		return eng, nil
	}
}
