package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bannerly/internal/types"
)

// Maintenance task names accepted by Maintenance.Run.
const (
	TaskPurgeExpiredSessions = "purge_expired_sessions"
	TaskFailOverduePosts     = "fail_overdue_posts"
	TaskAll                  = "all"
)

// defaultOverdueGrace is how long past its scheduled time a pending post may
// still be published. Within the grace window a late worker catches up;
// beyond it the post is swept to failed rather than published stale.
const defaultOverdueGrace = 24 * time.Hour

// SessionJanitor deletes sessions past their expiry.
type SessionJanitor interface {
	DeleteExpired(ctx context.Context) error
}

// PostJanitor sweeps pending posts that the worker can no longer publish,
// reporting how many were failed per user so their charges come back.
type PostJanitor interface {
	FailOverdue(ctx context.Context, cutoff time.Time) (map[string]int, error)
}

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	TasksRun           []string `json:"tasks_run"`
	OverduePostsFailed int      `json:"overdue_posts_failed"`
}

// MaintenanceConfig wires the maintenance dependencies.
type MaintenanceConfig struct {
	Sessions     SessionJanitor
	Posts        PostJanitor
	Ledger       Ledger
	OverdueGrace time.Duration
	Logger       *slog.Logger
}

// Maintenance runs periodic janitorial tasks. Each task is independent and
// idempotent; a failing task aborts the run so the caller can retry it.
type Maintenance struct {
	sessions SessionJanitor
	posts    PostJanitor
	ledger   Ledger
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewMaintenance creates a Maintenance service, applying defaults for any
// unset values.
func NewMaintenance(cfg MaintenanceConfig) *Maintenance {
	if cfg.OverdueGrace <= 0 {
		cfg.OverdueGrace = defaultOverdueGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Maintenance{
		sessions: cfg.Sessions,
		posts:    cfg.Posts,
		ledger:   cfg.Ledger,
		grace:    cfg.OverdueGrace,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Run executes the named task, or every task for TaskAll. An empty task name
// means TaskAll.
func (m *Maintenance) Run(ctx context.Context, task string) (*MaintenanceReport, error) {
	if task == "" {
		task = TaskAll
	}

	report := &MaintenanceReport{TasksRun: []string{}}

	switch task {
	case TaskPurgeExpiredSessions:
		if err := m.purgeExpiredSessions(ctx, report); err != nil {
			return nil, err
		}
	case TaskFailOverduePosts:
		if err := m.failOverduePosts(ctx, report); err != nil {
			return nil, err
		}
	case TaskAll:
		if err := m.purgeExpiredSessions(ctx, report); err != nil {
			return nil, err
		}
		if err := m.failOverduePosts(ctx, report); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidTask,
			"unknown maintenance task: "+task, nil)
	}

	return report, nil
}

func (m *Maintenance) purgeExpiredSessions(ctx context.Context, report *MaintenanceReport) error {
	if err := m.sessions.DeleteExpired(ctx); err != nil {
		m.logger.ErrorContext(ctx, "expired session purge failed", "error", err)
		return err
	}
	report.TasksRun = append(report.TasksRun, TaskPurgeExpiredSessions)
	return nil
}

func (m *Maintenance) failOverduePosts(ctx context.Context, report *MaintenanceReport) error {
	cutoff := m.now().UTC().Add(-m.grace)
	byUser, err := m.posts.FailOverdue(ctx, cutoff)
	if err != nil {
		m.logger.ErrorContext(ctx, "overdue post sweep failed", "error", err)
		return err
	}

	// Swept posts were paid for but never published; the charge goes back.
	total := 0
	for userID, count := range byUser {
		total += count
		m.refundScheduleCharges(ctx, userID, count)
	}
	if total > 0 {
		m.logger.InfoContext(ctx, "overdue posts swept to failed",
			"count", total,
			"cutoff", cutoff,
		)
	}
	report.TasksRun = append(report.TasksRun, TaskFailOverduePosts)
	report.OverduePostsFailed = total
	return nil
}

func (m *Maintenance) refundScheduleCharges(ctx context.Context, userID string, count int) {
	if m.ledger == nil || count <= 0 {
		return
	}
	description := fmt.Sprintf("refund for %d overdue scheduled posts", count)
	if err := m.ledger.Refund(ctx, userID, count*types.SchedulePostCost, description); err != nil {
		m.logger.ErrorContext(ctx, "failed to refund overdue post charges",
			"user_id", userID,
			"posts", count,
			"error", err,
		)
	}
}
