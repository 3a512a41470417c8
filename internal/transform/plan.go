package transform

import (
	"context"
	"fmt"

	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Spec is a named operator configuration
type Spec struct {
	Name     string
	Operator Operator
}

// envelope is the persisted form of a Spec; kind selects the concrete operator type
type envelope struct {
	Name string    `yaml:"name"`
	Kind Kind      `yaml:"kind"`
	Spec yaml.Node `yaml:"spec"`
}

// Plan is an ordered mapping name -> operator. Execution follows insertion order.
type Plan struct {
	specs []Spec
}

// NewPlan creates an empty plan
func NewPlan() *Plan {
	return &Plan{}
}

// Add appends a named operator; names are unique
func (p *Plan) Add(name string, op Operator) error {
	if name == "" {
		return apperrors.NewConfigurationError("missing_name", "transform name is required")
	}
	if op == nil {
		return apperrors.NewConfigurationError("missing_operator", "transform %q has no operator", name)
	}
	if p.index(name) >= 0 {
		return fmt.Errorf("%w: transform %q", apperrors.ErrDuplicateName, name)
	}
	p.specs = append(p.specs, Spec{Name: name, Operator: op})
	return nil
}

// Replace swaps the operator of an existing name, keeping its position
func (p *Plan) Replace(name string, op Operator) error {
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("transform %q not found", name)
	}
	p.specs[i].Operator = op
	return nil
}

// Remove deletes a named operator and reports whether it existed
func (p *Plan) Remove(name string) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}
	p.specs = append(p.specs[:i], p.specs[i+1:]...)
	return true
}

// Get returns the operator stored under name
func (p *Plan) Get(name string) (Operator, bool) {
	i := p.index(name)
	if i < 0 {
		return nil, false
	}
	return p.specs[i].Operator, true
}

// Names returns the names in execution order
func (p *Plan) Names() []string {
	names := make([]string, len(p.specs))
	for i, s := range p.specs {
		names[i] = s.Name
	}
	return names
}

// Specs returns a copy of the specs in execution order
func (p *Plan) Specs() []Spec {
	out := make([]Spec, len(p.specs))
	copy(out, p.specs)
	return out
}

// Len returns the number of operators
func (p *Plan) Len() int {
	return len(p.specs)
}

// Validate checks every operator against the schema
func (p *Plan) Validate(ctx context.Context, lookup SchemaLookup) error {
	for _, s := range p.specs {
		if err := s.Operator.Validate(ctx, lookup); err != nil {
			if appErr, ok := err.(*apperrors.AppError); ok {
				appErr.WithContext("transform", s.Name)
			}
			return err
		}
	}
	return nil
}

func (p *Plan) index(name string) int {
	for i, s := range p.specs {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// MarshalYAML writes the plan as a sequence of {name, kind, spec}
func (p *Plan) MarshalYAML() (interface{}, error) {
	out := make([]envelope, 0, len(p.specs))
	for _, s := range p.specs {
		var node yaml.Node
		if err := node.Encode(s.Operator); err != nil {
			return nil, fmt.Errorf("encoding transform %q: %w", s.Name, err)
		}
		out = append(out, envelope{Name: s.Name, Kind: s.Operator.Kind(), Spec: node})
	}
	return out, nil
}

// UnmarshalYAML reads a sequence of {name, kind, spec}, decoding each spec by its kind
func (p *Plan) UnmarshalYAML(value *yaml.Node) error {
	var envelopes []envelope
	if err := value.Decode(&envelopes); err != nil {
		return err
	}

	p.specs = nil
	for _, e := range envelopes {
		op, err := New(e.Kind)
		if err != nil {
			return fmt.Errorf("transform %q: %w", e.Name, err)
		}
		if !e.Spec.IsZero() {
			if err := e.Spec.Decode(op); err != nil {
				return fmt.Errorf("transform %q: %w", e.Name, err)
			}
		}
		if err := p.Add(e.Name, op); err != nil {
			return err
		}
	}
	return nil
}
