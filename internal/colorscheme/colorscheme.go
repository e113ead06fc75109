// Package colorscheme loads the two read-only, externally-owned files
// spec.md §6 describes: a colors.json mapping scheme -> extension ->
// RGB, and a preferences.json of opaque UI preferences. Neither file
// is ever written by this module.
package colorscheme

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/diskviz/treemap/pkg/schema"
)

// RGB is one color triple, each channel in [0, 255]. It is encoded in
// colors.json as a 3-element array, matching the embedded schema.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

func (c *RGB) UnmarshalJSON(data []byte) error {
	var arr [3]uint8
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	c.R, c.G, c.B = arr[0], arr[1], arr[2]
	return nil
}

func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

// ColorScheme is the two-level scheme -> extension -> RGB map.
type ColorScheme map[string]map[string]RGB

// Load reads and validates path against the embedded colors schema. An
// empty path returns an empty scheme rather than an error, since a
// color scheme is an optional override.
func Load(path string) (ColorScheme, error) {
	if path == "" {
		return ColorScheme{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("colorscheme: reading %s: %w", path, err)
	}
	if err := schema.Validate(schema.ColorScheme, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("colorscheme: validating %s: %w", path, err)
	}

	var scheme ColorScheme
	if err := json.Unmarshal(raw, &scheme); err != nil {
		return nil, fmt.Errorf("colorscheme: decoding %s: %w", path, err)
	}
	return scheme, nil
}

// Lookup returns the color for extension under scheme, and whether it
// was found.
func (c ColorScheme) Lookup(scheme, extension string) (RGB, bool) {
	byExt, ok := c[scheme]
	if !ok {
		return RGB{}, false
	}
	rgb, ok := byExt[extension]
	return rgb, ok
}

// LoadPreferences reads and validates path against the embedded
// preferences schema, returning the raw decoded document — the set of
// UI preference keys is deliberately open-ended (spec.md §6), so this
// module only validates shape, never interprets individual keys.
func LoadPreferences(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("colorscheme: reading preferences %s: %w", path, err)
	}
	if err := schema.Validate(schema.Preferences, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("colorscheme: validating preferences %s: %w", path, err)
	}

	var prefs map[string]any
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, fmt.Errorf("colorscheme: decoding preferences %s: %w", path, err)
	}
	return prefs, nil
}
