package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"finlearn-attempt-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Source fetches catalog content from the backing store on a cache miss.
type Source interface {
	ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error)
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	ResolveTopic(ctx context.Context, moduleID, topicID int64) error
}

// quizBundle is the cached shape: the resolved quiz path plus its questions,
// stored as one JSON value under catalog:quiz:{quizID}. Questions get their
// own row type because domain.Question hides the correct answer from JSON.
type quizBundle struct {
	Path      domain.QuizPath `json:"path"`
	Questions []questionRow   `json:"questions"`
}

type questionRow struct {
	ID            int64  `json:"id"`
	QuizID        int64  `json:"quizId"`
	Text          string `json:"text"`
	Option1       string `json:"option1"`
	Option2       string `json:"option2"`
	Option3       string `json:"option3"`
	Option4       string `json:"option4"`
	CorrectAnswer string `json:"correctAnswer"`
	Points        int    `json:"points"`
}

func toRow(q domain.Question) questionRow {
	return questionRow(q)
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question(r)
}

// CatalogCache caches resolved quizzes in Redis and falls back to a source on
// cache miss. Visibility flips and question edits become visible after TTL.
type CatalogCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	sf     singleflight.Group
}

func NewCatalogCache(client *redis.Client, source Source, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

func (c *CatalogCache) ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error) {
	bundle, err := c.bundle(ctx, quizID)
	if err != nil {
		return domain.QuizPath{}, err
	}
	return bundle.Path, nil
}

func (c *CatalogCache) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	bundle, err := c.bundle(ctx, quizID)
	if err != nil {
		return nil, err
	}
	questions := make([]domain.Question, len(bundle.Questions))
	for i, row := range bundle.Questions {
		questions[i] = row.toDomain()
	}
	return questions, nil
}

// ResolveTopic is not cached; the manual progress path is not hot.
func (c *CatalogCache) ResolveTopic(ctx context.Context, moduleID, topicID int64) error {
	return c.source.ResolveTopic(ctx, moduleID, topicID)
}

func (c *CatalogCache) bundle(ctx context.Context, quizID int64) (quizBundle, error) {
	key := c.quizKey(quizID)

	if bundle, ok := c.cached(ctx, key); ok {
		return bundle, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bundle, ok := c.cached(ctx, key); ok {
			return bundle, nil
		}

		path, err := c.source.ResolveQuiz(ctx, quizID)
		if err != nil {
			return quizBundle{}, err
		}
		questions, err := c.source.Questions(ctx, quizID)
		if err != nil {
			return quizBundle{}, err
		}

		rows := make([]questionRow, len(questions))
		for i, q := range questions {
			rows[i] = toRow(q)
		}
		bundle := quizBundle{Path: path, Questions: rows}
		if payload, err := json.Marshal(bundle); err == nil {
			pipe := c.client.Pipeline()
			pipe.Set(ctx, key, payload, 0)
			if ttl := c.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			_, _ = pipe.Exec(ctx)
		}
		return bundle, nil
	})
	if err != nil {
		return quizBundle{}, err
	}
	return result.(quizBundle), nil
}

func (c *CatalogCache) cached(ctx context.Context, key string) (quizBundle, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return quizBundle{}, false
	}
	var bundle quizBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return quizBundle{}, false
	}
	return bundle, true
}

func (c *CatalogCache) quizKey(quizID int64) string {
	return "catalog:quiz:" + strconv.FormatInt(quizID, 10)
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// top-level rand is safe from concurrent singleflight loaders
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
