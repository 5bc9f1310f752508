package storage

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// flushCronSpec runs the background flush every five seconds. Using the
// seconds field (cron.WithSeconds) gives a tighter period than the
// standard five-field crontab would allow.
const flushCronSpec = "*/5 * * * * *"

// Scheduler periodically flushes a DB's buffer pool in the background so
// dirty pages don't only get written back under eviction pressure.
type Scheduler struct {
	db     *DB
	cron   *cron.Cron
	logger *log.Logger
}

// NewScheduler builds a scheduler for db. Call Start to begin running it.
func NewScheduler(db *DB, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	loc, _ := time.LoadLocation("UTC")
	return &Scheduler{
		db:     db,
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the periodic flush job and begins running it.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(flushCronSpec, s.runFlush); err != nil {
		s.logger.Printf("storage: failed to schedule background flush: %v", err)
		return
	}
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight flush to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runFlush() {
	s.db.Flush()
}
