// Package configutil loads json5 configuration files with optional
// machine-local overrides (<name>.local.<ext> merged over <name>.<ext>).
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// reads one config layer. found is false when the file does not exist.
func readLayer[T any](path string, out *T) (found bool, err error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json5.Unmarshal(contents, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads `name` (extension included), then merges
// `<name>.local.<ext>` over it if present. Returns os.ErrNotExist
// when neither layer exists.
func ReadConfig[T any](name string) (T, error) {
	var out T

	prefix, ext := splitExt(filepath.Base(name))
	localName := filepath.Join(
		filepath.Dir(name),
		fmt.Sprintf("%s.local.%s", prefix, ext),
	)

	foundBase, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	var local T
	foundLocal, err := readLayer(localName, &local)
	if err != nil {
		return out, err
	}
	if foundLocal {
		if err := mergo.Merge(&out, local, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localName)
	}

	if !foundBase && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks up from the working directory toward the
// filesystem root looking for a config file matching `name`.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	root, err := filepath.Abs("/")
	if err != nil {
		return zero, err
	}
	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for current != root {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if os.IsNotExist(err) {
			current = filepath.Join(current, "..")
			continue
		}
		if err != nil {
			return zero, err
		}
		return config, nil
	}

	return zero, os.ErrNotExist
}
