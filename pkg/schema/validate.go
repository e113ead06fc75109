// Package schema embeds the JSON Schemas used to validate the config
// file and the externally-owned colors/preferences files before this
// module trusts them.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/diskviz/treemap/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind identifies which embedded schema to validate a document against.
type Kind int

const (
	Config Kind = iota + 1
	ColorScheme
	Preferences
)

var logger = log.For("schema")

//go:embed schemas/*
var schemaFiles embed.FS

func Load(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Host + u.Path)
}

func init() {
	jsonschema.Loaders["embedfs"] = Load // url.Parse lowercases the scheme
}

// Validate decodes r as JSON and checks it against the schema for k.
func Validate(k Kind, r io.Reader) error {
	var s *jsonschema.Schema
	var err error

	switch k {
	case Config:
		s, err = jsonschema.Compile("embedFS://schemas/config.schema.json")
	case ColorScheme:
		s, err = jsonschema.Compile("embedFS://schemas/colors.schema.json")
	case Preferences:
		s, err = jsonschema.Compile("embedFS://schemas/preferences.schema.json")
	default:
		return fmt.Errorf("schema: unknown kind %d", k)
	}
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		logger.Errorf("failed to decode document: %s", err.Error())
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema.Validate: %w", err)
	}
	return nil
}
