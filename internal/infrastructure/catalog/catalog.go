// Package catalog loads the badge catalog and earning-rate seeds from YAML.
// Both files ship embedded; a path overrides the embedded copy.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
)

//go:embed badges.yaml
var embeddedBadges []byte

//go:embed earning_rates.yaml
var embeddedRates []byte

// LoadBadges reads the catalog from path, or the embedded file when path is empty.
func LoadBadges(path string) (*badge.Catalog, error) {
	data, err := readOrEmbedded(path, embeddedBadges)
	if err != nil {
		return nil, err
	}
	return ParseBadges(data)
}

// ParseBadges decodes and validates a YAML badge list.
func ParseBadges(data []byte) (*badge.Catalog, error) {
	var defs []badge.Definition
	if err := decodeStrict(data, &defs); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	return badge.NewCatalog(defs)
}

// LoadRates reads earning rates from path, or the embedded seeds when path is empty.
func LoadRates(path string) ([]rate.SkillEarningRate, error) {
	data, err := readOrEmbedded(path, embeddedRates)
	if err != nil {
		return nil, err
	}
	return ParseRates(data)
}

// ParseRates decodes a YAML rate list. Entries are normalized and validated;
// the first invalid entry fails the whole file.
func ParseRates(data []byte) ([]rate.SkillEarningRate, error) {
	var rates []rate.SkillEarningRate
	if err := decodeStrict(data, &rates); err != nil {
		return nil, fmt.Errorf("parse earning rates: %w", err)
	}
	for i := range rates {
		rates[i] = rates[i].Normalize()
		if err := rates[i].Validate(); err != nil {
			return nil, fmt.Errorf("earning rate #%d: %w", i, err)
		}
	}
	return rates, nil
}

func readOrEmbedded(path string, embedded []byte) ([]byte, error) {
	if path == "" {
		return embedded, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// decodeStrict rejects unknown keys so typos in ops-edited files fail loudly.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
