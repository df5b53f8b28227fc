package repositoryimpl

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
)

type assignmentRow struct {
	ID                    int64                    `gorm:"primaryKey;autoIncrement"`
	WorkerID              string                   `gorm:"size:64;not null;index:idx_worker_day,priority:1"`
	Day                   string                   `gorm:"size:10;not null;index:idx_worker_day,priority:2;index:idx_project_day,priority:2;index:idx_supervisor_day,priority:2"`
	ProjectID             string                   `gorm:"size:64;not null;index:idx_project_day,priority:1"`
	SupervisorID          string                   `gorm:"size:64;index:idx_supervisor_day,priority:1"`
	TaskID                string                   `gorm:"size:128;not null"`
	TaskName              string                   `gorm:"size:200;not null"`
	Status                string                   `gorm:"size:16;not null"`
	Priority              string                   `gorm:"size:16;not null"`
	Sequence              int                      `gorm:"not null"`
	Dependencies          []int64                  `gorm:"serializer:json"`
	DailyTarget           assignment.DailyTarget   `gorm:"serializer:json"`
	GeofenceRequired      bool                     `gorm:"not null"`
	LastValidatedAt       *time.Time
	LastValidatedLocation *geofence.Coordinate     `gorm:"serializer:json"`
	Deadline              *time.Time
	Instructions          []assignment.Instruction `gorm:"serializer:json"`
	AssignedAt            time.Time                `gorm:"not null"`
	StartTime             *time.Time
	PauseTime             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	CancelReason          string
	UpdatedAt             time.Time `gorm:"autoUpdateTime:false"`
	Revision              int64     `gorm:"not null"`
}

func (assignmentRow) TableName() string { return "task_assignments" }

// GormRepository stores one row per assignment. Multi-record saves run in one
// transaction guarded by each row's revision.
type GormRepository struct {
	db *gorm.DB
}

var _ assignment.Repository = (*GormRepository)(nil)

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the task_assignments table.
func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&assignmentRow{}); err != nil {
		return cerr.WrapDatabaseError("assignments", err)
	}
	return nil
}

func (r *GormRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	row := toRow(a)
	row.ID = 0
	row.Revision = 1
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return cerr.WrapDatabaseError("assignment", err)
	}
	a.ID = row.ID
	a.Revision = 1
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id int64) (*assignment.Assignment, error) {
	var row assignmentRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, assignment.NewNotFoundError(id)
	}
	if err != nil {
		return nil, cerr.WrapDatabaseError("assignment", err)
	}
	return fromRow(&row), nil
}

func (r *GormRepository) ListByWorkerDay(ctx context.Context, workerID string, day assignment.Day) ([]*assignment.Assignment, error) {
	return r.list(ctx, "worker_id = ? AND day = ?", workerID, string(day))
}

func (r *GormRepository) ListByProjectDay(ctx context.Context, projectID string, day assignment.Day) ([]*assignment.Assignment, error) {
	return r.list(ctx, "project_id = ? AND day = ?", projectID, string(day))
}

func (r *GormRepository) ListBySupervisorDay(ctx context.Context, supervisorID string, day assignment.Day) ([]*assignment.Assignment, error) {
	return r.list(ctx, "supervisor_id = ? AND day = ?", supervisorID, string(day))
}

func (r *GormRepository) list(ctx context.Context, query string, args ...any) ([]*assignment.Assignment, error) {
	var rows []assignmentRow
	if err := r.db.WithContext(ctx).Where(query, args...).Order("sequence, id").Find(&rows).Error; err != nil {
		return nil, cerr.WrapDatabaseError("assignments", err)
	}
	out := make([]*assignment.Assignment, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

func (r *GormRepository) Save(ctx context.Context, changed ...*assignment.Assignment) error {
	if len(changed) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changed {
			row := toRow(c)
			row.Revision = c.Revision + 1
			res := tx.Model(&assignmentRow{}).
				Where("id = ? AND revision = ?", c.ID, c.Revision).
				Select("*").Omit("id").
				Updates(&row)
			if res.Error != nil {
				return cerr.WrapDatabaseError("assignment", res.Error)
			}
			if res.RowsAffected == 1 {
				continue
			}
			var n int64
			if err := tx.Model(&assignmentRow{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
				return cerr.WrapDatabaseError("assignment", err)
			}
			if n == 0 {
				return assignment.NewNotFoundError(c.ID)
			}
			return assignment.NewConcurrentModificationError(c.ID)
		}
		return nil
	})
	if err != nil {
		var ce *cerr.Error
		if errors.As(err, &ce) {
			return err
		}
		return cerr.WrapDatabaseError("assignments", err)
	}
	for _, c := range changed {
		c.Revision++
	}
	return nil
}

func toRow(a *assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:                    a.ID,
		WorkerID:              a.WorkerID,
		Day:                   string(a.Day),
		ProjectID:             a.ProjectID,
		SupervisorID:          a.SupervisorID,
		TaskID:                a.TaskID,
		TaskName:              a.TaskName,
		Status:                string(a.Status),
		Priority:              string(a.Priority),
		Sequence:              a.Sequence,
		Dependencies:          a.Dependencies,
		DailyTarget:           a.DailyTarget,
		GeofenceRequired:      a.GeofenceValidation.Required,
		LastValidatedAt:       a.GeofenceValidation.LastValidatedAt,
		LastValidatedLocation: a.GeofenceValidation.LastValidatedLocation,
		Deadline:              a.Deadline,
		Instructions:          a.Instructions,
		AssignedAt:            a.AssignedAt,
		StartTime:             a.StartTime,
		PauseTime:             a.PauseTime,
		CompletedAt:           a.CompletedAt,
		CancelledAt:           a.CancelledAt,
		CancelReason:          a.CancelReason,
		UpdatedAt:             a.UpdatedAt,
		Revision:              a.Revision,
	}
}

func fromRow(row *assignmentRow) *assignment.Assignment {
	return &assignment.Assignment{
		ID:           row.ID,
		WorkerID:     row.WorkerID,
		ProjectID:    row.ProjectID,
		TaskID:       row.TaskID,
		SupervisorID: row.SupervisorID,
		TaskName:     row.TaskName,
		Day:          assignment.Day(row.Day),
		Status:       assignment.Status(row.Status),
		Priority:     assignment.Priority(row.Priority),
		Sequence:     row.Sequence,
		Dependencies: row.Dependencies,
		DailyTarget:  row.DailyTarget,
		GeofenceValidation: assignment.GeofenceValidation{
			Required:              row.GeofenceRequired,
			LastValidatedAt:       row.LastValidatedAt,
			LastValidatedLocation: row.LastValidatedLocation,
		},
		Deadline:     row.Deadline,
		Instructions: row.Instructions,
		AssignedAt:   row.AssignedAt,
		StartTime:    row.StartTime,
		PauseTime:    row.PauseTime,
		CompletedAt:  row.CompletedAt,
		CancelledAt:  row.CancelledAt,
		CancelReason: row.CancelReason,
		UpdatedAt:    row.UpdatedAt,
		Revision:     row.Revision,
	}
}
