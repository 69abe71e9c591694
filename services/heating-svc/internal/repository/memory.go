package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository хранит расчёты в памяти процесса
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs: make(map[uuid.UUID]*Run),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = r.now().UTC()

	stored := *run
	stored.Result = append([]byte(nil), run.Result...)

	r.mu.Lock()
	r.runs[run.ID] = &stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := *run
	out.Result = append([]byte(nil), run.Result...)
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, opts *ListOptions) ([]*RunSummary, int64, error) {
	o := opts.normalize()

	r.mu.RLock()
	matched := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		if o.NetworkHash != "" && run.NetworkHash != o.NetworkHash {
			continue
		}
		matched = append(matched, run)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := int64(len(matched))
	if o.Offset >= len(matched) {
		return []*RunSummary{}, total, nil
	}
	end := min(o.Offset+o.Limit, len(matched))

	out := make([]*RunSummary, 0, end-o.Offset)
	for _, run := range matched[o.Offset:end] {
		out = append(out, run.Summary())
	}
	return out, total, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[id]; !ok {
		return ErrRunNotFound
	}
	delete(r.runs, id)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }
func (r *MemoryRepository) Close() error               { return nil }
