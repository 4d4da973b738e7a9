// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout of a catalog override:
//
//	models:
//	  - key: gpt4o
//	    remote_id: gpt-4o-2024-11-20
//	    ...
type catalogFile struct {
	Models []Identity `yaml:"models"`
}

// LoadCatalogFile reads a YAML catalog from path.
// Unknown fields are rejected so typos do not silently drop parameters.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	cat, err := NewCatalog(file.Models)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return cat, nil
}

// MarshalCatalog encodes a catalog in the same layout ParseCatalog reads.
func MarshalCatalog(c *Catalog) ([]byte, error) {
	return yaml.Marshal(catalogFile{Models: c.Identities()})
}
