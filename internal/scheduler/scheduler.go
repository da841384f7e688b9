// Package scheduler runs periodic database maintenance.
package scheduler

import (
	"database/sql"
	"sync"
	"time"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

// Status holds the result of the last maintenance run.
type Status struct {
	LastRun             time.Time `json:"lastRun"`
	NextRun             time.Time `json:"nextRun"`
	NotificationsPruned int64     `json:"notificationsPruned"`
	ChatMessagesPruned  int64     `json:"chatMessagesPruned"`
	IntervalHours       int       `json:"intervalHours"`
	RetentionDays       int       `json:"retentionDays"`
	ChatRetentionDays   int       `json:"chatRetentionDays"`
}

// Scheduler runs periodic maintenance tasks in the background.
type Scheduler struct {
	db   *sql.DB
	log  *logger.Logger
	now  func() time.Time
	stop chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a new Scheduler for the given database.
func New(db *sql.DB, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		db:   db,
		log:  log,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins running maintenance tasks. It runs an initial pass immediately,
// then repeats at the configured interval. Call Stop to shut down gracefully.
func (s *Scheduler) Start() {
	go s.run()
	s.log.Info("background scheduler started")
}

// Stop signals the scheduler to shut down and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Status returns the result of the last maintenance run.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) run() {
	defer close(s.done)

	s.RunMaintenance()

	for {
		// The interval is re-read each pass so settings changes apply
		// without a restart.
		timer := time.NewTimer(s.interval())
		select {
		case <-timer.C:
			s.RunMaintenance()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(models.GetMaintenanceIntervalHours(s.db)) * time.Hour
}

// RunMaintenance executes all periodic cleanup tasks once.
func (s *Scheduler) RunMaintenance() Status {
	start := s.now()
	s.log.Debug("running scheduled maintenance")

	retention := models.GetMaintenanceRetentionDays(s.db)
	chatRetention := models.GetChatRetentionDays(s.db)
	interval := models.GetMaintenanceIntervalHours(s.db)

	st := Status{
		LastRun:             start,
		NextRun:             start.Add(time.Duration(interval) * time.Hour),
		NotificationsPruned: s.pruneOldNotifications(start, retention),
		ChatMessagesPruned:  s.pruneChatMessages(start, chatRetention),
		IntervalHours:       interval,
		RetentionDays:       retention,
		ChatRetentionDays:   chatRetention,
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	s.log.Info("scheduled maintenance complete",
		"notifications_pruned", st.NotificationsPruned,
		"chat_messages_pruned", st.ChatMessagesPruned,
		"duration", s.now().Sub(start))
	return st
}

// pruneOldNotifications removes read notifications older than the retention period.
func (s *Scheduler) pruneOldNotifications(now time.Time, days int) int64 {
	deleted, err := models.DeleteOldNotifications(s.db, now.AddDate(0, 0, -days))
	if err != nil {
		s.log.Error("prune old notifications", "error", err)
		return 0
	}
	return deleted
}

// pruneChatMessages removes chat history older than the chat retention
// period. Zero days keeps history forever.
func (s *Scheduler) pruneChatMessages(now time.Time, days int) int64 {
	if days <= 0 {
		return 0
	}
	deleted, err := models.DeleteChatMessagesBefore(s.db, now.AddDate(0, 0, -days))
	if err != nil {
		s.log.Error("prune chat messages", "error", err)
		return 0
	}
	return deleted
}
