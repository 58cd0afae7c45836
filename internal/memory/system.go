package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSystem creates key or replaces its content and metadata.
func (r *Repo) UpsertSystem(ctx context.Context, key, content string, metadata *string) (*SystemEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, goerr.Wrap(ErrEmptyKey, "system memory key is required")
	}

	q, cancel := r.conn(ctx)
	e := &SystemEntry{Key: key, Content: content, Metadata: metadata}
	err := q.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "memory_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "metadata", "updated_at"}),
	}).Create(e).Error
	cancel()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert system memory", goerr.V("key", key))
	}
	return r.GetSystem(ctx, key)
}

func (r *Repo) GetSystem(ctx context.Context, key string) (*SystemEntry, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var e SystemEntry
	if err := q.Where("memory_key = ?", key).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "system memory not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to get system memory", goerr.V("key", key))
	}
	return &e, nil
}

// UpdateSystem changes only the given fields of an existing entry.
func (r *Repo) UpdateSystem(ctx context.Context, key string, content, metadata *string) (*SystemEntry, error) {
	updates := map[string]any{"updated_at": time.Now()}
	if content != nil {
		updates["content"] = *content
	}
	if metadata != nil {
		updates["metadata"] = *metadata
	}

	q, cancel := r.conn(ctx)
	res := q.Model(&SystemEntry{}).Where("memory_key = ?", key).Updates(updates)
	cancel()
	if res.Error != nil {
		return nil, goerr.Wrap(res.Error, "failed to update system memory", goerr.V("key", key))
	}
	if res.RowsAffected == 0 {
		return nil, goerr.Wrap(ErrNotFound, "system memory not found", goerr.V("key", key))
	}
	return r.GetSystem(ctx, key)
}

// DeleteSystem removes one key, or every entry when key is empty.
func (r *Repo) DeleteSystem(ctx context.Context, key string) (int64, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	if key == "" {
		res := q.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&SystemEntry{})
		if res.Error != nil {
			return 0, goerr.Wrap(res.Error, "failed to clear system memory")
		}
		return res.RowsAffected, nil
	}

	res := q.Where("memory_key = ?", key).Delete(&SystemEntry{})
	if res.Error != nil {
		return 0, goerr.Wrap(res.Error, "failed to delete system memory", goerr.V("key", key))
	}
	if res.RowsAffected == 0 {
		return 0, goerr.Wrap(ErrNotFound, "system memory not found", goerr.V("key", key))
	}
	return res.RowsAffected, nil
}

// ListSystem returns all entries, most recently updated first.
func (r *Repo) ListSystem(ctx context.Context) ([]SystemEntry, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var out []SystemEntry
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list system memory")
	}
	return out, nil
}

func (r *Repo) SystemSummary(ctx context.Context) (*SystemSummary, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	sum := &SystemSummary{}
	if err := q.Model(&SystemEntry{}).Count(&sum.Count).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to count system memory")
	}
	if sum.Count == 0 {
		return sum, nil
	}

	var first, last SystemEntry
	if err := q.Order("created_at ASC").Order("id ASC").First(&first).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to load first system memory")
	}
	if err := q.Order("updated_at DESC").Order("id DESC").First(&last).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to load last system memory")
	}
	sum.FirstCreated = &first.CreatedAt
	sum.LastUpdated = &last.UpdatedAt
	return sum, nil
}
