package chat

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("job not found")

// Repo stores async ask jobs.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Models returns the tables owned by this package, for migration.
func Models() []any {
	return []any{&Job{}}
}

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return goerr.Wrap(err, "failed to create job", goerr.V("job_id", job.ID))
	}
	return nil
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrJobNotFound, "no such job", goerr.V("job_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get job", goerr.V("job_id", id))
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error; err != nil {
		return goerr.Wrap(err, "failed to mark job running", goerr.V("job_id", id))
	}
	return nil
}

// markJobSucceeded runs inside the transaction that records the job's turn.
func markJobSucceeded(q *gorm.DB, id string, assistantMsgID uint64, reply string) error {
	if err := q.Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"reply":             reply,
			"error":             nil,
		}).Error; err != nil {
		return goerr.Wrap(err, "failed to mark job succeeded", goerr.V("job_id", id))
	}
	return nil
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error; err != nil {
		return goerr.Wrap(err, "failed to mark job failed", goerr.V("job_id", id))
	}
	return nil
}

// GetJobByUserAndIdempotencyKey matches anonymous jobs when userID is nil.
func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID *uint64, key string) (*Job, error) {
	q := r.db.WithContext(ctx).Where("idempotency_key = ?", key)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}
	var job Job
	if err := q.Order("created_at ASC").First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrJobNotFound, "no job for idempotency key", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to get job by idempotency key", goerr.V("key", key))
	}
	return &job, nil
}

// CreateJobOrGetExisting creates job unless one with the same (user, key)
// exists, in which case that job is returned with created=false. Unique
// indexes treat NULL users as distinct, so the lookup runs first.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateJob(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	existing, err := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, false, err
	}

	createErr := r.CreateJob(ctx, job)
	if createErr == nil {
		return job, true, nil
	}

	// lost a race with a concurrent request carrying the same key
	existing, err = r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	return nil, false, createErr
}
