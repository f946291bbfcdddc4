package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	envSimple      = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

func init() {
	// Best-effort: a missing .env is not an error, operators may rely
	// solely on the real environment.
	_ = godotenv.Load()
}

// expandEnvVars rewrites ${VAR}, ${VAR:-default} and $VAR references
// in raw config bytes using the process environment. withDefault is
// resolved before braced so "${VAR:-x}" isn't mistaken for "${VAR}".
func expandEnvVars(raw []byte) ([]byte, error) {
	if !bytesContainDollar(raw) {
		return raw, nil
	}
	text := string(raw)
	text = envWithDefault.ReplaceAllStringFunc(text, func(m string) string {
		groups := envWithDefault.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
	text = envBraced.ReplaceAllStringFunc(text, func(m string) string {
		groups := envBraced.FindStringSubmatch(m)
		return os.Getenv(groups[1])
	})
	text = envSimple.ReplaceAllStringFunc(text, func(m string) string {
		groups := envSimple.FindStringSubmatch(m)
		return os.Getenv(groups[1])
	})
	return []byte(text), nil
}

func bytesContainDollar(b []byte) bool {
	for _, c := range b {
		if c == '$' {
			return true
		}
	}
	return false
}
