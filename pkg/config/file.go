package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	"github.com/titanous/json5"
)

// localName returns the override file name for name:
// "browser.json5" becomes "browser.local.json5".
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// ReadConfig reads a JSON5 configuration file and merges
// <name>.local.<ext> over it when present. Fields set in the local file win.
// When neither file exists the error is os.ErrNotExist.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	base, err := readJSON5[T](name)
	switch {
	case err == nil:
		out = base
		found = true
	case !os.IsNotExist(err):
		return out, err
	}

	local := localName(name)
	override, err := readJSON5[T](local)
	switch {
	case err == nil:
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge %s: %w", local, err)
		}
		log.Info().Str("local", local).Msg("Merged config with local overrides")
		found = true
	case !os.IsNotExist(err):
		return out, err
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func readJSON5[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, os.ErrNotExist
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}
