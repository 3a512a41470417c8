package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/mysql-data-anonymizer/internal/config"
	"github.com/vitebski/mysql-data-anonymizer/internal/connector"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/metrics"
	"github.com/vitebski/mysql-data-anonymizer/internal/snapshot"
	"github.com/vitebski/mysql-data-anonymizer/internal/sqlstore"
	"github.com/vitebski/mysql-data-anonymizer/internal/staging"
	"github.com/vitebski/mysql-data-anonymizer/internal/synthetic"
	"github.com/vitebski/mysql-data-anonymizer/internal/utils"
)

// session is what every command starts from
type session struct {
	logger *logrus.Logger
	cfg    *config.RunConfig
}

func setup(opts *options) (*session, error) {
	// Setup logging
	logger := utils.SetupLogging(opts.logLevel)

	// Load environment variables
	utils.LoadEnvironmentVariables(opts.envFile, logger)

	cfg, err := config.LoadRunConfig(opts.runConfig)
	if err != nil {
		logger.Errorf("Failed to load run configuration: %v", err)
		return nil, err
	}
	if opts.bundle != "" {
		cfg.Bundle = opts.bundle
	}
	return &session{logger: logger, cfg: cfg}, nil
}

// openStore opens the CSV snapshot given by --data-dir, or connects to the database
func (s *session) openStore(ctx context.Context, opts *options) (dataset.Store, error) {
	if opts.dataDir != "" {
		snap, err := snapshot.LoadDir(opts.dataDir, s.logger)
		if err != nil {
			s.logger.Errorf("Failed to load snapshot: %v", err)
			return nil, err
		}
		return snap, nil
	}

	db, err := s.connect(opts, opts.database)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, s.logger), nil
}

func (s *session) connect(opts *options, database string) (*connector.DatabaseConnector, error) {
	// Get connection parameters from flags or environment
	db := connector.NewDatabaseConnector(opts.driver, opts.host, opts.user, opts.password, database, opts.port, s.logger)

	// Validate connection parameters
	if !utils.ValidateConnectionParams(db.Host, db.User, db.Password, db.Database, db.Port, s.logger) {
		return nil, errors.New("invalid connection parameters")
	}

	if err := db.Connect(); err != nil {
		s.logger.Errorf("Failed to connect to database: %v", err)
		return nil, err
	}
	return db, nil
}

func (s *session) loadBundle() (*config.Bundle, error) {
	b, err := config.LoadBundleFile(s.cfg.Bundle)
	if err != nil {
		s.logger.Errorf("Failed to load bundle: %v", err)
		return nil, err
	}
	return b, nil
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		seed   int64
		out    string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mask a working copy of the dataset and report risk and utility",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := setup(opts)
			if err != nil {
				return err
			}
			bundle, err := s.loadBundle()
			if err != nil {
				return err
			}

			store, err := s.openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("seed") {
				s.cfg.Seed = seed
			}
			if s.cfg.Seed == 0 {
				s.cfg.Seed = time.Now().UnixNano()
			}
			s.logger.Infof("Using random seed %d", s.cfg.Seed)

			recorder, err := metrics.NewRecorder(s.logger)
			if err != nil {
				return err
			}
			coord := staging.NewCoordinator(store, s.cfg.Seed, s.logger)
			coord.Metrics = recorder

			s.logger.Info("Starting masking run...")
			report, runErr := coord.Run(ctx, s.cfg.Staging(bundle))
			if report != nil {
				utils.PrintRunReport(report)
			}
			if err := recorder.WriteTextfile(s.cfg.MetricsFile); err != nil {
				s.logger.Warningf("Run metrics not written: %v", err)
			}
			if runErr != nil {
				return runErr
			}

			masked := coord.Active()
			if verify {
				changed, err := utils.VerifyRowCounts(ctx, store, masked, s.logger)
				if err != nil {
					return err
				}
				utils.PrintVerificationResults(changed)
			}

			if snap, ok := masked.(*snapshot.Store); ok {
				if out == "" {
					out = masked.Name()
				}
				if err := snap.ExportDir(out); err != nil {
					return err
				}
				s.logger.Infof("Masked tables written to %s", out)
			} else {
				defer masked.Close()
				s.logger.Infof("Masked dataset available as database %s", masked.Name())
			}
			return nil
		},
	}

	cmd.Flags().Int64VarP(&seed, "seed", "s", 0, "Random seed (default: from run config, else time based)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory of masked CSV tables (default: mask_<data-dir name>)")
	cmd.Flags().BoolVarP(&verify, "verify", "v", false, "Compare row counts of the masked dataset with the origin")
	return cmd
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Print tables, column types and privacy classification hints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := setup(opts)
			if err != nil {
				return err
			}
			store, err := s.openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if sql, ok := store.(*sqlstore.Store); ok {
				if err := sql.Analyzer.AnalyzeSchema(ctx); err != nil {
					s.logger.Errorf("Failed to analyze schema: %v", err)
					return err
				}
				return utils.PrintSchemaAnalysis(ctx, store, sql.Analyzer)
			}
			return utils.PrintSchemaAnalysis(ctx, store, nil)
		},
	}
}

func newSynthCmd(opts *options) *cobra.Command {
	var (
		out     string
		preview int
		send    string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate synthetic tables with the external generator scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := setup(opts)
			if err != nil {
				return err
			}
			store, err := s.openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			bridge := synthetic.NewBridge(s.cfg.Synthetic.Command, s.cfg.Synthetic.ScriptDir, s.logger)
			ws := dataset.NewWorkspace(store, s.logger)

			if send != "" {
				parts := strings.SplitN(send, ":", 2)
				if len(parts) != 2 {
					return fmt.Errorf("--send expects <table>:<method>, got %q", send)
				}
				msg, err := bridge.Send(ctx, ws, parts[0], parts[1])
				if err != nil {
					return err
				}
				fmt.Println(msg)
				return nil
			}

			if len(s.cfg.Synthetic.Tables) == 0 {
				return fmt.Errorf("no synthetic tables configured; known methods: %s", strings.Join(bridge.Methods(), ", "))
			}
			for _, sc := range s.cfg.Synthetic.Tables {
				t, err := bridge.Generate(ctx, ws, sc)
				if err != nil {
					s.logger.Errorf("Failed to generate %s: %v", sc.OutputName(), err)
					return err
				}
				if preview > 0 {
					utils.PrintTable(t, preview)
				}
				if err := ws.Put(ctx, t); err != nil {
					return err
				}
			}
			if err := ws.Flush(ctx); err != nil {
				return err
			}

			if snap, ok := store.(*snapshot.Store); ok && out != "" {
				return snap.ExportDir(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Export the CSV snapshot including the synthetic tables to this directory")
	cmd.Flags().IntVar(&preview, "preview", 0, "Print the first rows of every generated table")
	cmd.Flags().StringVar(&send, "send", "", "Only hand <table>:<method> to the generator and print its reply")
	return cmd
}

func newRevertCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Drop the masked working copy of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := setup(opts)
			if err != nil {
				return err
			}
			if opts.dataDir != "" {
				return errors.New("snapshot runs never modify --data-dir; delete the --out directory instead")
			}

			db, err := s.connect(opts, opts.database)
			if err != nil {
				return err
			}
			defer db.Disconnect()

			name := dataset.WorkingCopyName(db.Database)
			if err := db.DropDatabase(ctx, name); err != nil {
				s.logger.Errorf("Failed to drop %s: %v", name, err)
				return err
			}
			s.logger.Infof("Dropped %s, %s is the active dataset again", name, db.Database)
			return nil
		},
	}
}

func newPlanCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and edit the preparation and transform bundle",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List preparation entries and transforms in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(opts)
			if err != nil {
				return err
			}
			b, err := s.loadBundle()
			if err != nil {
				return err
			}

			fmt.Println("Preparation:")
			for _, e := range b.Preparation {
				fmt.Printf("  %-24s %s.%s (%s)\n", e.Name, e.Table, e.Column, e.Method)
			}
			fmt.Println("Transforms:")
			for i, spec := range b.Transforms.Specs() {
				table, columns := spec.Operator.Target()
				fmt.Printf("  %2d. %-20s %-24s %s [%s]\n", i+1, spec.Name, spec.Operator.Kind(), table, strings.Join(columns, ", "))
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a preparation entry or transform by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(opts)
			if err != nil {
				return err
			}
			b, err := s.loadBundle()
			if err != nil {
				return err
			}

			name := args[0]
			if !b.Transforms.Remove(name) && !b.RemovePreparation(name) {
				return fmt.Errorf("nothing named %q in %s", name, s.cfg.Bundle)
			}
			if err := config.SaveBundleFile(s.cfg.Bundle, b); err != nil {
				return err
			}
			s.logger.Infof("Removed %s from %s", name, s.cfg.Bundle)
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the bundle against the schema of the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := setup(opts)
			if err != nil {
				return err
			}
			b, err := s.loadBundle()
			if err != nil {
				return err
			}
			store, err := s.openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := b.Validate(ctx, store.Describe); err != nil {
				s.logger.Errorf("Bundle is invalid: %v", err)
				return err
			}
			fmt.Printf("%s is valid: %d preparation entries, %d transforms\n", s.cfg.Bundle, len(b.Preparation), b.Transforms.Len())
			return nil
		},
	}

	cmd.AddCommand(list, remove, validate)
	return cmd
}
