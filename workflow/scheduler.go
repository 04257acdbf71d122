package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/appctx"
	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// IntervalJob is a recurring task the scheduler runs on its own cadence,
// independent of the daily set.
type IntervalJob struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context)

	lastRun time.Time
}

// Scheduler drives all periodic lifecycle work off a single tick loop. Every
// job runs in its own goroutine with a deferred recover, so one failing job
// never takes down the loop or its siblings.
//
// The daily set runs once per calendar day at or after DailyRunHour in the
// configured location. The per-day marker is in-memory only; a restart later
// the same day reruns the daily set, which every daily job tolerates through
// its own dedup (lookback, set-once stamps, period uniqueness).
type Scheduler struct {
	Engine         *Engine
	Logger         *logrus.Logger
	Settings       config.Settings
	RetentionPurge func(ctx context.Context, retentionDays int)
	IntervalJobs   []*IntervalJob

	// Locker, when set, gates the daily set behind a best-effort
	// distributed lock so only one instance fires it.
	Locker *redislock.Client

	TickInterval time.Duration
	Clock        func() time.Time

	lastDailyRun int
}

func NewScheduler(engine *Engine, logger *logrus.Logger, settings config.Settings) *Scheduler {
	return &Scheduler{
		Engine:       engine,
		Logger:       logger,
		Settings:     settings,
		TickInterval: settings.TickInterval,
		Clock:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.Logger.Info("background scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.TickInterval):
		}
		s.Tick(ctx)
	}
}

// Tick evaluates one scheduler step. Exposed so tests can drive the loop
// with a fake clock.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.Clock()

	for _, job := range s.IntervalJobs {
		if job.Every <= 0 || now.Sub(job.lastRun) < job.Every {
			continue
		}
		job.lastRun = now
		s.spawnJob(ctx, job.Name, job.Run)
	}

	local := now.In(s.Settings.Location())
	marker := local.Year()*1000 + local.YearDay()
	if s.lastDailyRun == marker {
		return
	}
	if local.Hour() < s.Settings.DailyRunHour {
		return
	}
	if !s.acquireDailyLock(ctx) {
		s.lastDailyRun = marker
		return
	}
	s.lastDailyRun = marker
	s.Logger.WithField("date", local.Format("2006-01-02")).Info("running daily jobs")
	s.runDailySet(ctx, local)
}

func (s *Scheduler) runDailySet(ctx context.Context, local time.Time) {
	s.spawnJob(ctx, "sla_breach_scan", func(ctx context.Context) {
		s.Engine.RunSlaBreachScan(ctx)
	})

	s.spawnJob(ctx, "anomaly_scan", func(ctx context.Context) {
		for _, orgId := range s.activeOrganizationIds(ctx) {
			alerts, err := s.Engine.RunAnomalyScan(ctx, orgId)
			if err != nil {
				config.LogError(s.Logger, "workflow", "runDailySet", "anomaly scan", map[string]interface{}{
					"organization_id": orgId,
				}, err)
				continue
			}
			if len(alerts) > 0 {
				s.Logger.WithFields(logrus.Fields{
					"organization_id": orgId,
					"count":           len(alerts),
				}).Info("anomalies detected")
			}
		}
	})

	s.spawnJob(ctx, "lease_renewal_scan", func(ctx context.Context) {
		s.Engine.RunLeaseRenewalScan(ctx, "")
	})

	s.spawnJob(ctx, "collection_cycle", func(ctx context.Context) {
		s.Engine.RunDailyCollectionCycle(ctx, "")
	})

	if local.Day() == 1 {
		s.spawnJob(ctx, "owner_statements", func(ctx context.Context) {
			var total uint32
			for _, orgId := range s.activeOrganizationIds(ctx) {
				total += s.Engine.GenerateMonthlyStatements(ctx, orgId)
			}
			if total > 0 {
				s.Logger.WithField("total", total).Info("owner statements auto-generated")
			}
		})
	}

	s.spawnJob(ctx, "stalled_application_scan", func(ctx context.Context) {
		s.Engine.RunStalledApplicationScan(ctx)
	})

	if s.RetentionPurge != nil {
		s.spawnJob(ctx, "notification_retention_purge", func(ctx context.Context) {
			s.RetentionPurge(ctx, s.Settings.RetentionDays)
		})
	}
}

func (s *Scheduler) spawnJob(ctx context.Context, name string, run func(ctx context.Context)) {
	jobCtx := appctx.Set(ctx, appctx.ContextKeyJobName, name)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.Logger.WithFields(logrus.Fields{
					"job":   name,
					"panic": r,
				}).Error("background job panicked")
			}
		}()
		run(jobCtx)
	}()
}

// acquireDailyLock takes a short distributed lock when a locker is
// configured. Failing to obtain it means another instance owns today's run.
// Without a locker every instance runs the daily set and relies on job-level
// dedup.
func (s *Scheduler) acquireDailyLock(ctx context.Context) bool {
	if s.Locker == nil {
		return true
	}
	_, err := s.Locker.Obtain(ctx, "automation:daily-jobs", 10*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		s.Logger.Info("daily jobs already claimed by another instance")
		return false
	}
	if err != nil {
		config.LogError(s.Logger, "workflow", "acquireDailyLock", "obtain daily lock", nil, err)
		return true
	}
	return true
}

func (s *Scheduler) activeOrganizationIds(ctx context.Context) []string {
	organizations, err := s.Engine.Store.List(ctx, "organizations", store.Filters{
		"is_active": true,
	}, store.ListOptions{Limit: 100, OrderBy: "created_at", Ascending: true})
	if err != nil {
		config.LogError(s.Logger, "workflow", "activeOrganizationIds", "list active organizations", nil, err)
		return nil
	}
	ids := make([]string, 0, len(organizations))
	for _, org := range organizations {
		if id := utils.RowString(org, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
