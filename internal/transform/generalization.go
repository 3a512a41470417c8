package transform

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// Instruction selects what a generalized column holds afterwards
type Instruction string

const (
	InstructionDefault Instruction = "default"
	InstructionAverage Instruction = "average"
	InstructionMedian  Instruction = "median"
	InstructionMode    Instruction = "mode"
)

// Bin is a half-open interval (lower, upper]. An empty bound is unbounded.
type Bin struct {
	Label string `yaml:"label"`
	Lower string `yaml:"lower,omitempty"`
	Upper string `yaml:"upper,omitempty"`
}

type bound struct {
	lower, upper interface{}
}

func (b bound) contains(v interface{}) bool {
	if b.lower != nil && models.Compare(v, b.lower) <= 0 {
		return false
	}
	if b.upper != nil && models.Compare(v, b.upper) > 0 {
		return false
	}
	return true
}

// GeneralizationRange replaces values by the range bin they fall in
type GeneralizationRange struct {
	Table       string      `yaml:"table"`
	Column      string      `yaml:"column"`
	LookupTable string      `yaml:"lookup_table,omitempty"`
	Bins        []Bin       `yaml:"bins"`
	Instruction Instruction `yaml:"instruction,omitempty"`
}

func (g *GeneralizationRange) Kind() Kind { return KindGeneralizationRange }

func (g *GeneralizationRange) Target() (string, []string) {
	return g.Table, []string{g.Column}
}

func (g *GeneralizationRange) instruction() Instruction {
	if g.Instruction == "" {
		return InstructionDefault
	}
	return g.Instruction
}

func (g *GeneralizationRange) lookupTable() string {
	if g.LookupTable != "" {
		return g.LookupTable
	}
	return fmt.Sprintf("%s_%s_generalization", g.Table, g.Column)
}

func (g *GeneralizationRange) Validate(ctx context.Context, lookup SchemaLookup) error {
	cols, err := lookupColumns(ctx, lookup, g.Kind(), g.Table, g.Column)
	if err != nil {
		return err
	}
	st := cols[0].Type
	if st == models.String {
		return invalid(g.Kind(), "column %s is not numeric or date", g.Column)
	}
	if len(g.Bins) == 0 {
		return invalid(g.Kind(), "at least one bin is required")
	}
	switch g.instruction() {
	case InstructionDefault, InstructionAverage, InstructionMedian, InstructionMode:
	default:
		return invalid(g.Kind(), "unknown instruction %q", g.Instruction)
	}
	for i, b := range g.Bins {
		if b.Label == "" {
			return invalid(g.Kind(), "bin %d has no label", i+1)
		}
	}
	_, err = g.bounds(st)
	return err
}

func (g *GeneralizationRange) bounds(st models.SemanticType) ([]bound, error) {
	out := make([]bound, len(g.Bins))
	for i, b := range g.Bins {
		var err error
		if b.Lower != "" {
			if out[i].lower, err = models.Coerce(b.Lower, st); err != nil {
				return nil, invalid(g.Kind(), "bin %q lower bound: %v", b.Label, err)
			}
		}
		if b.Upper != "" {
			if out[i].upper, err = models.Coerce(b.Upper, st); err != nil {
				return nil, invalid(g.Kind(), "bin %q upper bound: %v", b.Label, err)
			}
		}
		if out[i].lower != nil && out[i].upper != nil && models.Compare(out[i].lower, out[i].upper) >= 0 {
			return nil, invalid(g.Kind(), "bin %q is empty", b.Label)
		}
	}
	return out, nil
}

// Assign returns, per row, the index of the first bin containing the value or -1
func (g *GeneralizationRange) Assign(t *models.Table) ([]int, error) {
	col, err := columnIndex(t, g.Column)
	if err != nil {
		return nil, err
	}
	bounds, err := g.bounds(t.Columns[col].Type)
	if err != nil {
		return nil, err
	}

	assigned := make([]int, len(t.Rows))
	for r, row := range t.Rows {
		assigned[r] = -1
		if row[col] == nil {
			continue
		}
		for i, b := range bounds {
			if b.contains(row[col]) {
				assigned[r] = i
				break
			}
		}
	}
	return assigned, nil
}

func (g *GeneralizationRange) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, g.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, g.Column)
	if err != nil {
		return Result{}, err
	}
	assigned, err := g.Assign(t)
	if err != nil {
		return Result{}, err
	}

	if g.instruction() == InstructionDefault {
		return g.applyDefault(ctx, env, t, col, assigned)
	}
	return g.applyAggregate(env, t, col, assigned)
}

// applyDefault stores the 1-based bin index and writes the index -> label lookup table.
// Values outside every bin are kept; the column then holds text so both fit.
func (g *GeneralizationRange) applyDefault(ctx context.Context, env *Env, t *models.Table, col int, assigned []int) (Result, error) {
	kept := 0
	for r, row := range t.Rows {
		if assigned[r] < 0 && row[col] != nil {
			kept++
		}
	}
	target := models.Integer
	if kept > 0 {
		target = models.String
	}

	matched := 0
	for r, row := range t.Rows {
		var err error
		if assigned[r] >= 0 {
			row[col], err = models.Cast(int64(assigned[r]+1), target)
			matched++
		} else {
			row[col], err = models.Cast(row[col], target)
		}
		if err != nil {
			return Result{}, err
		}
	}
	t.Columns[col].Type = target
	t.Columns[col].DataType = ""
	if kept > 0 {
		env.Logger.Warningf("%d values of %s.%s fall outside every bin and are kept as text", kept, t.Name, g.Column)
	}
	env.Workspace.MarkDirty(t.Name)

	lookup := models.NewTable(g.lookupTable(), []models.Column{
		{Name: "id", Type: models.Integer, ColumnKey: "PRI"},
		{Name: "value", Type: models.String, IsNullable: true},
	})
	for i, b := range g.Bins {
		lookup.Rows = append(lookup.Rows, []interface{}{int64(i + 1), b.Label})
	}
	if err := env.Workspace.Put(ctx, lookup); err != nil {
		return Result{}, err
	}

	return Result{RowsAffected: matched, TablesCreated: []string{lookup.Name}}, nil
}

// applyAggregate replaces every member of a bin with the bin's aggregate of the original values
func (g *GeneralizationRange) applyAggregate(env *Env, t *models.Table, col int, assigned []int) (Result, error) {
	st := t.Columns[col].Type
	members := make([][]interface{}, len(g.Bins))
	matched := 0
	for r, row := range t.Rows {
		if a := assigned[r]; a >= 0 {
			members[a] = append(members[a], row[col])
			matched++
		}
	}

	// Averages and medians of integers are fractional
	target := st
	if st == models.Integer && g.instruction() != InstructionMode {
		target = models.Float
	}

	aggregates := make([]interface{}, len(g.Bins))
	for i, values := range members {
		if len(values) == 0 {
			continue
		}
		var agg interface{}
		var err error
		switch g.instruction() {
		case InstructionAverage:
			agg, err = models.Mean(values, st)
		case InstructionMedian:
			agg, err = models.Median(values, st)
		case InstructionMode:
			agg, err = models.Mode(values)
		}
		if err != nil {
			return Result{}, fmt.Errorf("bin %q: %w", g.Bins[i].Label, err)
		}
		if aggregates[i], err = models.Cast(agg, target); err != nil {
			return Result{}, err
		}
	}

	if target != st {
		if err := t.SetColumnType(col, target); err != nil {
			return Result{}, err
		}
	}
	for r, row := range t.Rows {
		if a := assigned[r]; a >= 0 {
			row[col] = aggregates[a]
		}
	}
	env.Workspace.MarkDirty(t.Name)
	return Result{RowsAffected: matched}, nil
}

// PatternRule rewrites values matching Pattern to Replacement
type PatternRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// GeneralizationPattern rewrites text values by regular expression, in rule order
type GeneralizationPattern struct {
	Table       string        `yaml:"table"`
	Column      string        `yaml:"column"`
	LookupTable string        `yaml:"lookup_table,omitempty"`
	Patterns    []PatternRule `yaml:"patterns"`
}

func (g *GeneralizationPattern) Kind() Kind { return KindGeneralizationPattern }

func (g *GeneralizationPattern) Target() (string, []string) {
	return g.Table, []string{g.Column}
}

func (g *GeneralizationPattern) lookupTable() string {
	if g.LookupTable != "" {
		return g.LookupTable
	}
	return fmt.Sprintf("%s_%s_patterns", g.Table, g.Column)
}

func (g *GeneralizationPattern) Validate(ctx context.Context, lookup SchemaLookup) error {
	if _, err := lookupColumns(ctx, lookup, g.Kind(), g.Table, g.Column); err != nil {
		return err
	}
	if len(g.Patterns) == 0 {
		return invalid(g.Kind(), "at least one pattern is required")
	}
	_, err := g.compile()
	return err
}

func (g *GeneralizationPattern) compile() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, len(g.Patterns))
	for i, p := range g.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, invalid(g.Kind(), "pattern %q: %v", p.Pattern, err)
		}
		out[i] = re
	}
	return out, nil
}

func (g *GeneralizationPattern) Apply(ctx context.Context, env *Env) (Result, error) {
	t, err := env.Workspace.Table(ctx, g.Table)
	if err != nil {
		return Result{}, err
	}
	col, err := columnIndex(t, g.Column)
	if err != nil {
		return Result{}, err
	}
	regexps, err := g.compile()
	if err != nil {
		return Result{}, err
	}

	if t.Columns[col].Type != models.String {
		if err := t.SetColumnType(col, models.String); err != nil {
			return Result{}, err
		}
	}

	changed := make(map[int]bool)
	lookup := models.NewTable(g.lookupTable(), []models.Column{
		{Name: "generalization", Type: models.String, IsNullable: true},
		{Name: "value", Type: models.String, IsNullable: true},
	})
	// Rules run one after another, so a later rule sees the output of earlier ones
	for i, re := range regexps {
		rule := g.Patterns[i]
		for r, row := range t.Rows {
			s, ok := row[col].(string)
			if !ok || !re.MatchString(s) {
				continue
			}
			row[col] = rule.Replacement
			changed[r] = true
		}
		lookup.Rows = append(lookup.Rows, []interface{}{rule.Replacement, rule.Pattern})
	}

	env.Workspace.MarkDirty(t.Name)
	if err := env.Workspace.Put(ctx, lookup); err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: len(changed), TablesCreated: []string{lookup.Name}}, nil
}
