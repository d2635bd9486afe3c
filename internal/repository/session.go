package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
)

// SessionRepository keeps sessions in process memory. Update runs mutations
// of one session one at a time.
type SessionRepository interface {
	Create(ctx context.Context, mode constants.Mode) (pipeline.Snapshot, error)
	Get(ctx context.Context, id string) (pipeline.Snapshot, error)
	Update(ctx context.Context, id string, fn func(*pipeline.Session) error) (pipeline.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Count() int
}

// SessionConfig bounds session lifetime.
type SessionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

type entry struct {
	mu      sync.Mutex
	session *pipeline.Session
	deleted atomic.Bool
}

type sessionRepository struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewSessionRepository(cfg SessionConfig, logger *zap.Logger) SessionRepository {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cache.New(cfg.TTL, cfg.CleanupInterval)
	c.OnEvicted(func(id string, x interface{}) {
		if e, ok := x.(*entry); ok && e.deleted.Load() {
			logger.Info("session.deleted", zap.String("session_id", id))
			return
		}
		logger.Info("session.expired", zap.String("session_id", id))
	})
	return &sessionRepository{cache: c, ttl: cfg.TTL, logger: logger}
}

func (r *sessionRepository) Create(_ context.Context, mode constants.Mode) (pipeline.Snapshot, error) {
	id := uuid.New().String()
	e := &entry{session: pipeline.NewSession(id, mode)}
	if err := r.cache.Add(id, e, r.ttl); err != nil {
		return pipeline.Snapshot{}, common.WrapError(err, "store session")
	}
	r.logger.Info("session.created", zap.String("session_id", id), zap.String("mode", string(e.session.Mode)))
	return e.session.Snapshot(), nil
}

func (r *sessionRepository) lookup(id string) (*entry, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*entry), nil
	}
	return nil, notFound(id)
}

func notFound(id string) error {
	return common.NewAppError(common.CodeNotFound, "session "+id+" not found", common.ErrNotFound)
}

func (r *sessionRepository) Get(_ context.Context, id string) (pipeline.Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot(), nil
}

// Update applies fn under the session lock and refreshes the TTL. The
// snapshot reflects the session after fn, even when fn returns an error,
// because reported errors are themselves state.
func (r *sessionRepository) Update(_ context.Context, id string, fn func(*pipeline.Session) error) (pipeline.Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return r.apply(id, e, fn)
}

// apply never stores e back once it left the cache, whether deleted or expired.
func (r *sessionRepository) apply(id string, e *entry, fn func(*pipeline.Session) error) (pipeline.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted.Load() {
		return pipeline.Snapshot{}, notFound(id)
	}

	fnErr := fn(e.session)
	if err := r.cache.Replace(id, e, r.ttl); err != nil {
		return pipeline.Snapshot{}, notFound(id)
	}
	return e.session.Snapshot(), fnErr
}

func (r *sessionRepository) Delete(_ context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.deleted.Store(true)
	e.mu.Unlock()
	r.cache.Delete(id)
	return nil
}

func (r *sessionRepository) Count() int {
	return r.cache.ItemCount()
}
