package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Compile-time interface check.
var _ Store = (*SQLStore)(nil)

// jobRecord is the persisted row for a Job. Seq gives a stable insertion
// order for pagination.
type jobRecord struct {
	Seq              uint64 `gorm:"primaryKey;autoIncrement"`
	ID               string `gorm:"uniqueIndex;size:64;not null"`
	TemplateID       string `gorm:"index;size:256"`
	DataSourceID     string `gorm:"size:256"`
	Range            string `gorm:"size:128"`
	Status           string `gorm:"index;size:32;not null"`
	TotalRecords     int
	ProcessedRecords int
	FailedRecords    int
	Progress         int
	Artifacts        []Artifact `gorm:"serializer:json"`
	RowErrors        []RowError `gorm:"serializer:json"`
	ErrorMessage     string     `gorm:"type:text"`
	ErrorKind        string     `gorm:"size:32"`
	CreatedAt        time.Time  `gorm:"not null"`
	StartedAt        *time.Time
	CompletedAt      *time.Time `gorm:"index"`
}

// TableName keeps merge jobs apart from other application tables.
func (jobRecord) TableName() string {
	return "merge_jobs"
}

func toRecord(j *Job) jobRecord {
	return jobRecord{
		ID:               j.ID,
		TemplateID:       j.TemplateID,
		DataSourceID:     j.DataSourceID,
		Range:            j.Range,
		Status:           string(j.Status),
		TotalRecords:     j.TotalRecords,
		ProcessedRecords: j.ProcessedRecords,
		FailedRecords:    j.FailedRecords,
		Progress:         j.Progress,
		Artifacts:        j.Artifacts,
		RowErrors:        j.RowErrors,
		ErrorMessage:     j.ErrorMessage,
		ErrorKind:        string(j.ErrorKind),
		CreatedAt:        j.CreatedAt.UTC(),
		StartedAt:        utc(j.StartedAt),
		CompletedAt:      utc(j.CompletedAt),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *jobRecord) toJob() *Job {
	j := &Job{
		ID:               r.ID,
		TemplateID:       r.TemplateID,
		DataSourceID:     r.DataSourceID,
		Range:            r.Range,
		Status:           Status(r.Status),
		TotalRecords:     r.TotalRecords,
		ProcessedRecords: r.ProcessedRecords,
		FailedRecords:    r.FailedRecords,
		Progress:         r.Progress,
		Artifacts:        r.Artifacts,
		RowErrors:        r.RowErrors,
		ErrorMessage:     r.ErrorMessage,
		ErrorKind:        merge.ErrorKind(r.ErrorKind),
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
	if j.Artifacts == nil {
		j.Artifacts = []Artifact{}
	}
	return j
}

// SQLStore persists jobs through gorm. It works with the sqlite and
// postgres dialects.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens a store for driver "sqlite" or "postgres" and migrates the
// schema.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("jobs: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: open %s: %w", driver, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm handle and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("jobs: migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a new job. Timestamps are stored in UTC so that Prune
// compares like with like on sqlite.
func (s *SQLStore) Create(ctx context.Context, job Job) error {
	rec := toRecord(&job)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&jobRecord{}).Where("id = ?", job.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("jobs: create %q: %w", job.ID, err)
		}
		if n > 0 {
			return fmt.Errorf("job %q: %w", job.ID, ErrAlreadyExists)
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("jobs: create %q: %w", job.ID, err)
		}
		return nil
	})
}

// Get loads the job with the given ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	var rec jobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get %q: %w", id, err)
	}
	return rec.toJob(), nil
}

// Update loads the job inside a transaction, applies fn and saves the
// result. On postgres the row is locked FOR UPDATE.
func (s *SQLStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	var out *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rec jobRecord
		err := q.Where("id = ?", id).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("jobs: load %q: %w", id, err)
		}

		j := rec.toJob()
		if err := fn(j); err != nil {
			return err
		}
		next := toRecord(j)
		next.Seq = rec.Seq
		next.ID = rec.ID
		if err := tx.Save(&next).Error; err != nil {
			return fmt.Errorf("jobs: save %q: %w", id, err)
		}
		out = next.toJob()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns jobs matching filter in insertion order.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	db := s.db.WithContext(ctx)

	base := db.Model(&jobRecord{})
	if filter.Status != "" {
		base = base.Where("status = ?", string(filter.Status))
	}
	if filter.TemplateID != "" {
		base = base.Where("template_id = ?", filter.TemplateID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("jobs: count: %w", err)
	}

	page := base.Session(&gorm.Session{}).Order("seq ASC")
	if filter.PageToken != "" {
		var anchor jobRecord
		err := db.Select("seq").Where("id = ?", filter.PageToken).First(&anchor).Error
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrInvalidPageToken, filter.PageToken)
		}
		page = page.Where("seq > ?", anchor.Seq)
	}
	if filter.PageSize > 0 {
		page = page.Limit(filter.PageSize + 1)
	}

	var recs []jobRecord
	if err := page.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}

	out := &ListResult{Jobs: make([]Job, 0, len(recs)), TotalSize: int(total)}
	if filter.PageSize > 0 && len(recs) > filter.PageSize {
		recs = recs[:filter.PageSize]
		out.NextPageToken = recs[len(recs)-1].ID
	}
	for i := range recs {
		out.Jobs = append(out.Jobs, *recs[i].toJob())
	}
	return out, nil
}

// Prune deletes terminal jobs completed before cutoff.
func (s *SQLStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?",
			[]string{string(StatusCompleted), string(StatusFailed)}, cutoff.UTC()).
		Delete(&jobRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("jobs: prune: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
