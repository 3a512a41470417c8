// Package config loads the persisted masking bundle and the run configuration.
package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vitebski/mysql-data-anonymizer/internal/preparation"
	"github.com/vitebski/mysql-data-anonymizer/internal/transform"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
	"gopkg.in/yaml.v3"
)

// Bundle is the persisted configuration: named preparation policies and named transforms,
// both in execution order
type Bundle struct {
	Preparation []preparation.Entry `yaml:"preparation"`
	Transforms  *transform.Plan     `yaml:"transforms"`
}

// NewBundle creates an empty bundle
func NewBundle() *Bundle {
	return &Bundle{Transforms: transform.NewPlan()}
}

// LoadBundleFile reads a bundle from a YAML file
func LoadBundleFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle %s: %w", path, err)
	}
	defer f.Close()

	b, err := LoadBundle(f)
	if err != nil {
		return nil, fmt.Errorf("loading bundle %s: %w", path, err)
	}
	return b, nil
}

// LoadBundle decodes a bundle and checks names and methods. Schema checks happen in
// Validate, once a dataset is at hand.
func LoadBundle(r io.Reader) (*Bundle, error) {
	b := NewBundle()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(b); err != nil && err != io.EOF {
		return nil, err
	}
	if b.Transforms == nil {
		b.Transforms = transform.NewPlan()
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalBundle encodes a bundle as YAML
func MarshalBundle(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveBundleFile writes a bundle to a YAML file
func SaveBundleFile(path string, b *Bundle) error {
	data, err := MarshalBundle(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AddPreparation appends a named preparation entry
func (b *Bundle) AddPreparation(e preparation.Entry) error {
	for _, existing := range b.Preparation {
		if existing.Name == e.Name {
			return fmt.Errorf("%w: preparation %q", apperrors.ErrDuplicateName, e.Name)
		}
	}
	b.Preparation = append(b.Preparation, e)
	return b.check()
}

// RemovePreparation deletes a named preparation entry and reports whether it existed
func (b *Bundle) RemovePreparation(name string) bool {
	for i, e := range b.Preparation {
		if e.Name == name {
			b.Preparation = append(b.Preparation[:i], b.Preparation[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks every entry and transform against the schema of a dataset
func (b *Bundle) Validate(ctx context.Context, lookup func(ctx context.Context, table string) ([]models.Column, error)) error {
	if err := preparation.Validate(ctx, b.Preparation, lookup); err != nil {
		return err
	}
	return b.Transforms.Validate(ctx, lookup)
}

func (b *Bundle) check() error {
	seen := make(map[string]bool, len(b.Preparation))
	for _, e := range b.Preparation {
		if e.Name == "" {
			return apperrors.NewConfigurationError("preparation_name", "preparation entry for %s.%s has no name", e.Table, e.Column)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: preparation %q", apperrors.ErrDuplicateName, e.Name)
		}
		seen[e.Name] = true
		if !e.Method.Valid() {
			return apperrors.NewConfigurationError("preparation_method", "preparation %q: unknown method %q", e.Name, e.Method)
		}
	}
	return nil
}
