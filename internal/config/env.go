package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// fromEnv returns parse(value of key), or def when the variable is unset,
// empty or does not parse.
func fromEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func envStr(key, def string) string {
	return fromEnv(key, def, func(s string) (string, error) { return s, nil })
}

func envInt(key string, def int) int { return fromEnv(key, def, strconv.Atoi) }

func envDur(key string, def time.Duration) time.Duration {
	return fromEnv(key, def, time.ParseDuration)
}

func envFloat(key string, def float64) float64 {
	return fromEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envBool(key string, def bool) bool { return fromEnv(key, def, parseSwitch) }

// parseSwitch accepts the usual on/off spellings, case-insensitively.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// splitCSV splits on commas, trims each item and drops empty ones.
func splitCSV(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanBasePath returns p with exactly one leading slash and no trailing one;
// blank input yields "/".
func cleanBasePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
