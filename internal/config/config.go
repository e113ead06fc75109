// Package config implements C9's config half: loading and validating
// treemap.json, grounded on the teacher's internal/config.Init
// (read-validate-decode, tolerant of a missing file) but returning an
// error instead of calling log.Fatal — only the demo CLI's main does
// that.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/diskviz/treemap/pkg/schema"
)

// Config holds every tunable spec.md §6 names as a world constant or
// CLI flag, collected so a single JSON document can override them.
type Config struct {
	Concurrency  int     `json:"concurrency"`
	PaddingRatio float64 `json:"padding-ratio"`
	MaxPadding   float64 `json:"max-padding"`
	RootWidth    float64 `json:"root-width"`
	RootDepth    float64 `json:"root-depth"`
	BlockHeight  float64 `json:"block-height"`

	ShowDebuggingMenu bool   `json:"show-debugging-menu"`
	ColorSchemePath   string `json:"color-scheme-path"`
	PreferencesPath   string `json:"preferences-path"`
	DebugAddr         string `json:"debug-addr"`
	HistoryDB         string `json:"history-db"`
}

// Defaults returns a Config seeded with spec.md §6's world constants.
func Defaults() *Config {
	return &Config{
		Concurrency:  4,
		PaddingRatio: 0.9,
		MaxPadding:   0.75,
		RootWidth:    1000,
		RootDepth:    1000,
		BlockHeight:  2,

		ShowDebuggingMenu: false,
		ColorSchemePath:   "",
		PreferencesPath:   "",
		DebugAddr:         "127.0.0.1:9191",
		HistoryDB:         "./treemap-history.db",
	}
}

// Load reads path, validates it against the embedded config schema,
// and decodes it on top of Defaults. A missing file is not an error:
// the defaults apply unchanged, mirroring the teacher's os.IsNotExist
// tolerance.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return cfg, nil
}
