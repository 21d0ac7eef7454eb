package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"assessment-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a course's question pool from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error)
}

// QuestionBank caches course question pools with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	byID      map[string]int
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

// GetQuestions returns the course pool. Callers must not mutate the slice.
func (b *QuestionBank) GetQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	pool, err := b.pool(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return pool.questions, nil
}

func (b *QuestionBank) GetQuestion(ctx context.Context, courseID, questionID string) (domain.Question, error) {
	pool, err := b.pool(ctx, courseID)
	if err != nil {
		return domain.Question{}, err
	}
	idx, ok := pool.byID[questionID]
	if !ok {
		return domain.Question{}, domain.NotFound("question", questionID, domain.ErrQuestionNotFound)
	}
	return pool.questions[idx], nil
}

func (b *QuestionBank) pool(ctx context.Context, courseID string) (cachedPool, error) {
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[courseID]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(courseID, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[courseID]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx, courseID)
		if err != nil {
			return cachedPool{}, err
		}

		entry := newCachedPool(questions)
		b.mu.Lock()
		entry.expiresAt = now.Add(b.ttlWithJitterLocked())
		b.cache[courseID] = entry
		b.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cachedPool{}, err
	}
	return result.(cachedPool), nil
}

// Invalidate drops a cached pool so the next read reloads it.
func (b *QuestionBank) Invalidate(courseID string) {
	b.mu.Lock()
	delete(b.cache, courseID)
	b.mu.Unlock()
}

func newCachedPool(questions []domain.Question) cachedPool {
	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
	}
	return cachedPool{questions: questions, byID: byID}
}

func (b *QuestionBank) ttlWithJitterLocked() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
