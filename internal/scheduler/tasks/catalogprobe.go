package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/catalog"
	"github.com/appsearch/appsearch/internal/health"
	"github.com/appsearch/appsearch/internal/scheduler"
)

const (
	CatalogProbeTaskID = "catalog-probe"
	catalogHealthID    = "catalog"
	catalogHealthName  = "Catalog"
)

// CatalogProbeTask periodically searches the catalog and records whether it answered.
type CatalogProbeTask struct {
	searcher catalog.Searcher
	health   *health.Service
	term     string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCatalogProbeTask creates a new catalog probe task.
func NewCatalogProbeTask(searcher catalog.Searcher, healthSvc *health.Service, term string, timeout time.Duration, logger zerolog.Logger) *CatalogProbeTask {
	healthSvc.Register(catalogHealthID, catalogHealthName)
	return &CatalogProbeTask{
		searcher: searcher,
		health:   healthSvc,
		term:     term,
		timeout:  timeout,
		logger:   logger.With().Str("task", CatalogProbeTaskID).Logger(),
	}
}

// Run executes one probe search.
func (t *CatalogProbeTask) Run(ctx context.Context) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	items, err := t.searcher.Search(ctx, t.term)
	if err != nil {
		kind := catalog.KindOf(err)
		t.health.SetError(catalogHealthID, catalogHealthName, fmt.Sprintf("%s: %v", kind, err))
		t.logger.Warn().Err(err).Str("kind", string(kind)).Str("term", t.term).Msg("Catalog probe failed")
		return err
	}

	t.health.SetOK(catalogHealthID, catalogHealthName)
	t.logger.Debug().
		Str("term", t.term).
		Int("items", len(items)).
		Dur("elapsed", time.Since(start)).
		Msg("Catalog probe succeeded")
	return nil
}

// RegisterCatalogProbeTask registers the catalog probe with the scheduler.
// An empty cron expression leaves the probe unscheduled.
func RegisterCatalogProbeTask(sched *scheduler.Scheduler, probe *CatalogProbeTask, cronExpr string) error {
	if cronExpr == "" {
		return nil
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CatalogProbeTaskID,
		Name:        "Catalog Probe",
		Description: "Searches the catalog for a fixed term and records whether it is reachable",
		Cron:        cronExpr,
		RunOnStart:  true,
		Func:        probe.Run,
	})
}
