package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every key with its current value. Secret values are
// reported only as set or unset.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		v := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			if v == "" {
				v = "(unset)"
			} else {
				v = "(set)"
			}
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: v, Secret: s.secret})
	}
	return result
}

// SetKey writes key to the config file at path (DefaultPath when empty).
// Secrets go to the platform secret store instead.
func SetKey(path, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		if err := keychainSet(secretService, s.account, value); err != nil {
			return fmt.Errorf("storing secret %s: %w", key, err)
		}
		return nil
	}

	v, err := s.parseValue(value)
	if err != nil {
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid %s value %q", s.typ, value)}
	}
	if path == "" {
		path = DefaultPath()
	}
	b, err := newFileBackend(path)
	if err != nil {
		return err
	}
	switch s.typ {
	case kString:
		return b.SetString(key, v.(string))
	case kInt:
		return b.SetInt(key, v.(int))
	default:
		return b.setValue(key, v)
	}
}

// ValidKeys returns every config key name.
func ValidKeys() []string {
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.key
	}
	return keys
}

// ErrExists is returned by WriteExample when the target file is present.
var ErrExists = errors.New("config file already exists")

// WriteExample writes every non-secret key with its default value to path.
func WriteExample(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	cfg := defaults()
	data := make(map[string]any, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		v := s.extract(cfg)
		if s.typ == kList {
			list, _ := s.parseValue(fmt.Sprint(v))
			if list.([]string) == nil {
				list = []string{}
			}
			v = list
		}
		data[s.key] = v
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, append(out, '\n'), 0o600)
}
