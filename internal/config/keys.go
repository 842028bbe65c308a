package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Settings are addressed by dot-separated keys mirroring the JSON layout
// of config.json, e.g. "backend.base_url" or "query.max_attempts".

var secretKeys = map[string]bool{
	"telegram.token": true,
	"discord.token":  true,
}

// IsSecretKey reports whether the value under key is a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// envOverrides lists, per key, the variables that replace the file value.
// Later entries win.
var envOverrides = []struct {
	key string
	env string
	set func(*Config, string)
}{
	{"backend.base_url", "REACT_APP_API_URL", func(c *Config, v string) { c.Backend.BaseURL = v }},
	{"backend.base_url", "SAMARTH_API_URL", func(c *Config, v string) { c.Backend.BaseURL = v }},
	{"log_level", "SAMARTH_LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }},
	{"telegram.token", "TELEGRAM_BOT_TOKEN", func(c *Config, v string) { c.Telegram.Token = v }},
	{"discord.token", "DISCORD_BOT_TOKEN", func(c *Config, v string) { c.Discord.Token = v }},
}

// OverriddenBy returns the environment variable currently replacing the
// file value of key, or "" when the file value is in effect.
func OverriddenBy(key string) string {
	var name string
	for _, o := range envOverrides {
		if o.key == key && os.Getenv(o.env) != "" {
			name = o.env
		}
	}
	return name
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	m, err := ToMap(Defaults())
	if err != nil {
		return nil
	}
	flat := Flatten(m)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckKey rejects keys that no Config field reads. A near miss such as
// "backend.baseurl" is answered with the intended key.
func CheckKey(key string) error {
	norm := normalizeKey(key)
	var guess string
	for _, k := range Keys() {
		if k == key {
			return nil
		}
		if normalizeKey(k) == norm {
			guess = k
		}
	}
	if guess != "" {
		return fmt.Errorf("unknown config key: %s (did you mean %s?)", key, guess)
	}
	return fmt.Errorf("unknown config key: %s", key)
}

func normalizeKey(k string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(k))
}

// Flatten turns nested JSON objects into a single level keyed by path:
// {"backend": {"base_url": "x"}} becomes {"backend.base_url": "x"}. Empty
// objects contribute no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(path []string, node map[string]any)
	walk = func(path []string, node map[string]any) {
		for name, v := range node {
			p := append(path[:len(path):len(path)], name)
			if child, ok := v.(map[string]any); ok {
				walk(p, child)
				continue
			}
			out[strings.Join(p, ".")] = v
		}
	}
	walk(nil, m)
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		node := root
		for _, name := range parts[:len(parts)-1] {
			child, ok := node[name].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[name] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return root
}

// MaskSecrets returns a copy of flat with credential values reduced to
// their last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && secretKeys[k] {
			out[k] = Mask(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Mask hides all but the last four characters of a credential. An empty
// value stays empty.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}
