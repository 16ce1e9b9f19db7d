package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"finlearn-attempt-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// StaticCatalog is an in-memory content catalog (useful for tests/demos).
// Mutators simulate the admin CRUD that lives outside this service.
type StaticCatalog struct {
	mu        sync.RWMutex
	quizzes   map[int64]domain.QuizPath
	questions map[int64][]domain.Question // keyed by quiz id
	topics    map[int64]int64             // topic id -> module id
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		quizzes:   make(map[int64]domain.QuizPath),
		questions: make(map[int64][]domain.Question),
		topics:    make(map[int64]int64),
	}
}

// AddTopic registers a topic under a module.
func (c *StaticCatalog) AddTopic(moduleID, topicID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topicID] = moduleID
}

// AddQuiz registers a quiz with its resolved lesson chain and questions.
func (c *StaticCatalog) AddQuiz(path domain.QuizPath, questions ...domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[path.ID] = path
	c.questions[path.ID] = append([]domain.Question(nil), questions...)
	c.topics[path.TopicID] = path.ModuleID
}

// AddQuestion appends a question to an existing quiz.
func (c *StaticCatalog) AddQuestion(q domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions[q.QuizID] = append(c.questions[q.QuizID], q)
}

// RemoveQuestion simulates soft-deleting a question.
func (c *StaticCatalog) RemoveQuestion(quizID, questionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.questions[quizID][:0]
	for _, q := range c.questions[quizID] {
		if q.ID != questionID {
			kept = append(kept, q)
		}
	}
	c.questions[quizID] = kept
}

// SetQuizVisible flips a quiz's visibility flag.
func (c *StaticCatalog) SetQuizVisible(quizID int64, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path, ok := c.quizzes[quizID]; ok {
		path.IsVisible = visible
		c.quizzes[quizID] = path
	}
}

func (c *StaticCatalog) ResolveQuiz(_ context.Context, quizID int64) (domain.QuizPath, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if path, ok := c.quizzes[quizID]; ok {
		return path, nil
	}
	return domain.QuizPath{}, domain.ErrQuizNotFound
}

func (c *StaticCatalog) Questions(_ context.Context, quizID int64) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	return append([]domain.Question(nil), c.questions[quizID]...), nil
}

func (c *StaticCatalog) ResolveTopic(_ context.Context, moduleID, topicID int64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.topics[topicID]
	if !ok {
		return domain.ErrTopicNotFound
	}
	if owner != moduleID {
		return domain.ErrModuleNotFound
	}
	return nil
}

// StaticUsers is a fixed user directory.
type StaticUsers struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewStaticUsers(ids ...int64) *StaticUsers {
	u := &StaticUsers{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		u.ids[id] = struct{}{}
	}
	return u
}

func (u *StaticUsers) Add(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids[id] = struct{}{}
}

func (u *StaticUsers) UserExists(_ context.Context, userID int64) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ids[userID]
	return ok, nil
}

// Source is the backing catalog a cache falls through to.
type Source interface {
	ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error)
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
	ResolveTopic(ctx context.Context, moduleID, topicID int64) error
}

// CachedCatalog caches resolved quizzes with TTL to avoid repeated catalog
// hits.
type CachedCatalog struct {
	source Source
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[int64]cachedQuiz
}

type cachedQuiz struct {
	path      domain.QuizPath
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedCatalog(source Source, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[int64]cachedQuiz),
	}
}

func (c *CachedCatalog) ResolveQuiz(ctx context.Context, quizID int64) (domain.QuizPath, error) {
	entry, err := c.entry(ctx, quizID)
	if err != nil {
		return domain.QuizPath{}, err
	}
	return entry.path, nil
}

func (c *CachedCatalog) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	entry, err := c.entry(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), entry.questions...), nil
}

// ResolveTopic is not cached; the manual progress path is not hot.
func (c *CachedCatalog) ResolveTopic(ctx context.Context, moduleID, topicID int64) error {
	return c.source.ResolveTopic(ctx, moduleID, topicID)
}

func (c *CachedCatalog) entry(ctx context.Context, quizID int64) (cachedQuiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(keyFor(quizID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry, nil
		}
		c.mu.RUnlock()

		path, err := c.source.ResolveQuiz(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}
		questions, err := c.source.Questions(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}

		entry := cachedQuiz{
			path:      path,
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Lock()
		c.cache[quizID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cachedQuiz{}, err
	}
	return result.(cachedQuiz), nil
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations; the top-level rand
	// functions are safe from concurrent singleflight loaders
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

func keyFor(quizID int64) string {
	return "quiz-" + strconv.FormatInt(quizID, 10)
}
