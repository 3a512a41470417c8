package staging

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/internal/dataset"
	"github.com/vitebski/mysql-data-anonymizer/internal/generator"
	"github.com/vitebski/mysql-data-anonymizer/internal/metrics"
	"github.com/vitebski/mysql-data-anonymizer/internal/preparation"
	"github.com/vitebski/mysql-data-anonymizer/internal/risk"
	"github.com/vitebski/mysql-data-anonymizer/internal/selection"
	"github.com/vitebski/mysql-data-anonymizer/internal/transform"
	"github.com/vitebski/mysql-data-anonymizer/internal/utility"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
)

// Coordinator runs masking sessions one at a time against the active dataset
type Coordinator struct {
	Sampler   *selection.Sampler
	Generator *generator.DataGenerator
	Metrics   *metrics.Recorder
	Logger    *logrus.Logger

	rng  *rand.Rand
	slot chan struct{}

	mu      sync.RWMutex
	active  dataset.Store
	history []dataset.Store
	state   State
	entered time.Time
}

// NewCoordinator creates a coordinator over the active dataset. seed drives row selection,
// randomized operators and surrogate values.
func NewCoordinator(active dataset.Store, seed int64, logger *logrus.Logger) *Coordinator {
	rng := rand.New(rand.NewSource(seed))
	return &Coordinator{
		Sampler:   selection.NewSampler(rand.New(rand.NewSource(seed)), logger),
		Generator: generator.NewDataGenerator(seed, logger),
		Logger:    logger,
		rng:       rng,
		slot:      make(chan struct{}, 1),
		active:    active,
		state:     StateIdle,
	}
}

// Active returns the dataset subsequent operations should use
func (c *Coordinator) Active() dataset.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// State returns the state of the current or last run
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CanRevert reports whether a committed run can be reverted
func (c *Coordinator) CanRevert() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history) > 0
}

func (c *Coordinator) acquire() error {
	select {
	case c.slot <- struct{}{}:
		return nil
	default:
		return apperrors.ErrSessionActive
	}
}

func (c *Coordinator) release() {
	<-c.slot
}

func (c *Coordinator) enter(sess *Session, state State) {
	c.mu.Lock()
	prev, since := c.state, c.entered
	c.state = state
	c.entered = time.Now()
	c.mu.Unlock()

	if sess != nil {
		sess.State = state
	}
	if !since.IsZero() && prev != StateIdle && prev != StateDone && prev != StateFailed {
		c.Metrics.RecordState(string(prev), time.Since(since))
	}
	c.Logger.WithFields(logrus.Fields{"from": prev, "to": state}).Info("Staging state changed")
}

// Run executes one masking session: it stages a working copy of the active dataset,
// prepares, selects, transforms, assesses and restores it, then commits it as the new
// active dataset. On failure the working copy is dropped and the active dataset is left
// as it was. Only one run may be in progress.
func (c *Coordinator) Run(ctx context.Context, cfg RunConfig) (*Report, error) {
	if err := c.acquire(); err != nil {
		c.Logger.Errorf("Error starting masking run: %v", err)
		return nil, err
	}
	defer c.release()

	origin := c.Active()
	sess := &Session{ID: uuid.NewString(), Origin: origin, Started: time.Now()}
	report := &Report{SessionID: sess.ID, Origin: origin.Name(), Selected: make(map[string]int)}
	if cfg.Plan == nil {
		cfg.Plan = transform.NewPlan()
	}

	if err := c.validate(ctx, origin, cfg); err != nil {
		c.Logger.Errorf("Error validating run configuration: %v", err)
		return nil, err
	}

	err := c.run(ctx, sess, cfg, report)
	report.State = sess.State
	report.Duration = time.Since(sess.Started)
	if err != nil {
		c.fail(sess, err)
		report.State = StateFailed
		c.Metrics.RecordRun("failed")
		return report, err
	}

	c.mu.Lock()
	c.history = append(c.history, origin)
	c.active = sess.WorkingCopy
	c.mu.Unlock()
	c.enter(sess, StateDone)
	report.State = StateDone

	c.Metrics.RecordRun("done")
	c.Metrics.AddUnavailable(len(report.Warnings))
	if report.Risk != nil {
		for metric, v := range report.Risk.Averages {
			c.Metrics.SetRisk(string(metric), v)
		}
	}
	if report.Utility != nil {
		for stat, v := range report.Utility.Summary {
			c.Metrics.SetUtility(string(stat), v)
		}
	}

	c.Logger.Infof("Masking run %s committed %s as the active dataset in %v", sess.ID, report.WorkingCopy, report.Duration)
	return report, nil
}

func (c *Coordinator) validate(ctx context.Context, origin dataset.Store, cfg RunConfig) error {
	if err := preparation.Validate(ctx, cfg.Preparation, origin.Describe); err != nil {
		return err
	}
	if err := cfg.Plan.Validate(ctx, origin.Describe); err != nil {
		return err
	}
	if err := risk.ValidateRequests(cfg.Metrics); err != nil {
		return err
	}
	for table, percent := range cfg.Selection {
		if percent < 0 || percent > 100 {
			return apperrors.NewConfigurationError("selection_percent",
				"selection percent for table %s must be within [0,100], got %v", table, percent)
		}
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, sess *Session, cfg RunConfig, report *Report) error {
	c.enter(sess, StateStaging)
	wc, err := sess.Origin.CreateWorkingCopy(ctx)
	if err != nil {
		return apperrors.NewStagingError(err, fmt.Sprintf("creating working copy of %s", sess.Origin.Name()))
	}
	sess.WorkingCopy = wc
	sess.Workspace = dataset.NewWorkspace(wc, c.Logger)
	report.WorkingCopy = wc.Name()
	ws := sess.Workspace

	c.enter(sess, StatePreparing)
	changes, err := preparation.NewPreparer(cfg.Preparation, c.Logger).Run(ctx, ws)
	report.Preparation = changes
	if err != nil {
		return err
	}
	utilityEngine := utility.NewEngine(c.Logger)
	before, unavailable, err := utilityEngine.Capture(ctx, ws, cfg.Assess)
	if err != nil {
		return err
	}
	report.Warnings = append(report.Warnings, unavailable...)

	c.enter(sess, StateSelecting)
	backups, err := c.backup(ctx, ws, cfg.Selection, report)
	if err != nil {
		return err
	}

	c.enter(sess, StateTransforming)
	env := &transform.Env{Workspace: ws, Rand: c.rng, Generator: c.Generator, Logger: c.Logger}
	for _, spec := range cfg.Plan.Specs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := transform.Execute(ctx, spec.Name, spec.Operator, env)
		c.Metrics.RecordOperator(string(res.Kind), res.Duration, res.RowsAffected, res.RowsDeleted)
		if err != nil {
			return err
		}
		report.Transforms = append(report.Transforms, res)
	}

	c.enter(sess, StateRiskAssessment)
	assessment, err := risk.NewEngine(c.Logger).Assess(ctx, ws, cfg.QISets, cfg.Metrics)
	if err != nil {
		return err
	}
	report.Risk = assessment
	report.Warnings = append(report.Warnings, assessment.Unavailable...)

	after, unavailable, err := utilityEngine.Capture(ctx, ws, cfg.Assess)
	if err != nil {
		return err
	}
	report.Warnings = append(report.Warnings, unavailable...)
	report.Utility = utilityEngine.Compare(cfg.Assess, before, after)

	c.enter(sess, StateRestoring)
	if err := c.restore(ctx, ws, backups); err != nil {
		return err
	}
	return ws.Flush(ctx)
}

// fail moves the session to FAILED and drops its working copy. A failed drop is logged and
// leaves an orphaned copy behind.
func (c *Coordinator) fail(sess *Session, cause error) {
	c.Logger.Errorf("Error in masking run %s during %s: %v", sess.ID, sess.State, cause)
	c.enter(sess, StateFailed)
	if sess.WorkingCopy == nil {
		return
	}
	if err := sess.WorkingCopy.DropWorkingCopy(context.Background()); err != nil {
		c.Logger.Errorf("Error dropping working copy %s: %v", sess.WorkingCopy.Name(), err)
		return
	}
	if err := sess.WorkingCopy.Close(); err != nil {
		c.Logger.Warningf("Error closing working copy %s: %v", sess.WorkingCopy.Name(), err)
	}
}

// Revert drops the dataset committed by the last run and reactivates the one it was
// staged from
func (c *Coordinator) Revert(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	if len(c.history) == 0 {
		c.mu.Unlock()
		return apperrors.NewStagingError(apperrors.ErrNoWorkingCopy, "no committed run to revert")
	}
	committed := c.active
	previous := c.history[len(c.history)-1]
	c.mu.Unlock()

	if err := committed.DropWorkingCopy(ctx); err != nil {
		c.Logger.Errorf("Error dropping committed copy %s: %v", committed.Name(), err)
		return apperrors.NewStagingError(err, fmt.Sprintf("dropping %s", committed.Name()))
	}
	if err := committed.Close(); err != nil {
		c.Logger.Warningf("Error closing %s: %v", committed.Name(), err)
	}

	c.mu.Lock()
	c.history = c.history[:len(c.history)-1]
	c.active = previous
	c.mu.Unlock()
	c.enter(nil, StateIdle)
	c.Logger.Infof("Reverted to %s", previous.Name())
	return nil
}

func sortedTables(selection map[string]float64) []string {
	tables := make([]string, 0, len(selection))
	for t := range selection {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
