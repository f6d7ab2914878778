package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a credential may come from. The first non-empty
// source wins in the order File, Env, Value.
type Source struct {
	// Name is used in error messages, e.g. "groq api key".
	Name string
	// File points to a file containing the secret.
	File string
	// Env names an environment variable holding the secret.
	Env string
	// Value is an inline secret from configuration.
	Value string
}

// Load resolves the secret. The returned value is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if src.Env != "" {
		return "", fmt.Errorf("%s is not configured (set %s)", name, src.Env)
	}
	return "", fmt.Errorf("%s is not configured", name)
}
