package store

import (
	"context"
	"time"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Schedule is a recurring workflow submission driven by a cron expression.
type Schedule struct {
	ID          string           `json:"id"`
	CronExpr    string           `json:"cronExpr"`
	ResourceKey string           `json:"resourceKey,omitempty"`
	Workflow    *schema.Workflow `json:"workflow"`
	Enabled     bool             `json:"enabled"`
	NextRunAt   *time.Time       `json:"nextRunAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Archive persists finalized run results and schedule definitions. The
// in-memory result store inside the runtime stays authoritative for live
// runs; the archive is the durable mirror.
type Archive interface {
	SaveResult(ctx context.Context, result *schema.WorkflowResult) error
	GetResult(ctx context.Context, runID string) (*schema.WorkflowResult, error)
	ListResults(ctx context.Context, workflowID string, limit int) ([]*schema.WorkflowResult, error)

	SaveSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	Close() error
}
