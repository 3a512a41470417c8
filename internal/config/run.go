package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/vitebski/mysql-data-anonymizer/internal/risk"
	"github.com/vitebski/mysql-data-anonymizer/internal/staging"
	"github.com/vitebski/mysql-data-anonymizer/internal/synthetic"
	"github.com/vitebski/mysql-data-anonymizer/internal/utility"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
)

// AssessedColumns lists the columns of one table tracked by the utility engine
type AssessedColumns struct {
	Table   string   `mapstructure:"table"`
	Columns []string `mapstructure:"columns"`
}

// TableSelection restricts masking to a percent of a table's rows
type TableSelection struct {
	Table   string  `mapstructure:"table"`
	Percent float64 `mapstructure:"percent"`
}

// SyntheticConfig configures the synthetic generator process
type SyntheticConfig struct {
	Command   string             `mapstructure:"command"`
	ScriptDir string             `mapstructure:"script_dir"`
	Tables    []synthetic.Config `mapstructure:"tables"`
}

// RunConfig is the run configuration file
type RunConfig struct {
	Bundle      string               `mapstructure:"bundle"`
	Seed        int64                `mapstructure:"seed"`
	QISets      []risk.QISet         `mapstructure:"qi_sets"`
	Metrics     []risk.MetricRequest `mapstructure:"metrics"`
	Assess      []AssessedColumns    `mapstructure:"assess"`
	Selection   []TableSelection     `mapstructure:"selection"`
	Synthetic   SyntheticConfig      `mapstructure:"synthetic"`
	MetricsFile string               `mapstructure:"metrics_file"`
}

// LoadRunConfig reads the run configuration from cfgFile, with ANON_* environment
// variables overriding scalar settings. An empty cfgFile yields the defaults.
func LoadRunConfig(cfgFile string) (*RunConfig, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	v.SetEnvPrefix("ANON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("bundle", "anonymizer.yaml")
	v.SetDefault("seed", 0)
	v.SetDefault("synthetic.command", "python3")
	v.SetDefault("synthetic.script_dir", "scripts")
	v.SetDefault("metrics_file", "")

	if cfgFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &RunConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the run configuration without looking at any dataset
func (c *RunConfig) Validate() error {
	if err := risk.ValidateRequests(c.Metrics); err != nil {
		return err
	}
	for _, set := range c.QISets {
		if set.Table == "" || len(set.Columns) == 0 {
			return apperrors.NewConfigurationError("qi_set", "QI set %s needs a table and at least one column", set)
		}
	}
	for _, a := range c.Assess {
		if a.Table == "" || len(a.Columns) == 0 {
			return apperrors.NewConfigurationError("assess", "assessed columns need a table and at least one column")
		}
	}

	seen := make(map[string]bool, len(c.Selection))
	for _, s := range c.Selection {
		if seen[s.Table] {
			return apperrors.NewConfigurationError("selection", "selection for table %s given twice", s.Table)
		}
		seen[s.Table] = true
		if s.Percent < 0 || s.Percent > 100 {
			return apperrors.NewConfigurationError("selection_percent",
				"selection percent for table %s must be within [0,100], got %v", s.Table, s.Percent)
		}
	}

	for _, s := range c.Synthetic.Tables {
		if s.Table == "" || s.Method == "" {
			return apperrors.NewConfigurationError("synthetic", "synthetic table %q needs a source table and a method", s.OutputName())
		}
		if s.Rows < 0 {
			return apperrors.NewConfigurationError("synthetic", "synthetic table %q: rows must not be negative", s.OutputName())
		}
	}
	return nil
}

// Staging combines the run configuration with a bundle into the input of a masking run
func (c *RunConfig) Staging(b *Bundle) staging.RunConfig {
	run := staging.RunConfig{
		Preparation: b.Preparation,
		Plan:        b.Transforms,
		Selection:   make(map[string]float64, len(c.Selection)),
		QISets:      c.QISets,
		Metrics:     c.Metrics,
	}
	for _, s := range c.Selection {
		run.Selection[s.Table] = s.Percent
	}
	for _, a := range c.Assess {
		for _, col := range a.Columns {
			run.Assess = append(run.Assess, utility.ColumnRef{Table: a.Table, Column: col})
		}
	}
	return run
}
