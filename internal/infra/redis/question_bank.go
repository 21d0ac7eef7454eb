package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"assessment-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a course's question pool from the content store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error)
}

// QuestionBank caches question pools in Redis (hash per course) and falls back to a loader on cache miss.
// Questions are stored as: HSET course:{courseID}:questions {questionID} {json}
type QuestionBank struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

type cachedQuestion struct {
	Position int             `json:"pos"`
	Question domain.Question `json:"q"`
}

func NewQuestionBank(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) GetQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	if questions, ok := b.cached(ctx, courseID); ok {
		return questions, nil
	}
	return b.load(ctx, courseID)
}

// GetQuestion reads a single field before falling back to the whole pool.
func (b *QuestionBank) GetQuestion(ctx context.Context, courseID, questionID string) (domain.Question, error) {
	raw, err := b.client.HGet(ctx, b.key(courseID), questionID).Result()
	if err == nil {
		var entry cachedQuestion
		if json.Unmarshal([]byte(raw), &entry) == nil {
			return entry.Question, nil
		}
	}

	questions, err := b.GetQuestions(ctx, courseID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.NotFound("question", questionID, domain.ErrQuestionNotFound)
}

// Invalidate drops the cached pool.
func (b *QuestionBank) Invalidate(ctx context.Context, courseID string) error {
	return b.client.Del(ctx, b.key(courseID)).Err()
}

func (b *QuestionBank) load(ctx context.Context, courseID string) ([]domain.Question, error) {
	result, err, _ := b.sf.Do(courseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := b.cached(ctx, courseID); ok {
			return questions, nil
		}

		questions, err := b.loader.LoadQuestions(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return questions, nil
		}

		key := b.key(courseID)
		pipe := b.client.Pipeline()
		for i, q := range questions {
			raw, err := json.Marshal(cachedQuestion{Position: i, Question: q})
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, key, q.ID, raw)
		}
		if ttl := b.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// the cache is best effort; the loaded pool is still served
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(ctx context.Context, courseID string) ([]domain.Question, bool) {
	fields, err := b.client.HGetAll(ctx, b.key(courseID)).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	entries := make([]cachedQuestion, 0, len(fields))
	for _, raw := range fields {
		var entry cachedQuestion
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, false
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	questions := make([]domain.Question, len(entries))
	for i, e := range entries {
		questions[i] = e.Question
	}
	return questions, true
}

func (b *QuestionBank) key(courseID string) string {
	return "course:" + courseID + ":questions"
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
