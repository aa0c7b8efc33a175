package rwa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/internal/cache"
	redlock "github.com/jerry-enebeli/rwa/internal/lock"
	"github.com/jerry-enebeli/rwa/model"
)

// Session is the per-identity state carried between actions. Only the flow
// holding the identity's lock writes it.
type Session struct {
	Identity      string      `json:"identity"`
	View          *model.View `json:"view,omitempty"`
	LastAction    string      `json:"last_action,omitempty"`
	LastReference string      `json:"last_reference,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsFresh reports whether the session holds a complete view refreshed
// within maxAge.
func (s *Session) IsFresh(maxAge time.Duration) bool {
	if s.View == nil || len(s.View.Stale) > 0 {
		return false
	}
	return time.Since(s.View.RefreshedAt) <= maxAge
}

// SessionStore keeps sessions in the cache under rwa:session:<identity>.
type SessionStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSessionStore(c cache.Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: c, ttl: ttl}
}

func sessionKey(identity string) string {
	return fmt.Sprintf("rwa:session:%s", identity)
}

// Load returns the stored session of identity or a new empty one.
func (s *SessionStore) Load(ctx context.Context, identity string) (*Session, error) {
	session := &Session{}
	err := s.cache.Get(ctx, sessionKey(identity), session)
	if errors.Is(err, cache.ErrCacheMiss) {
		return &Session{Identity: identity}, nil
	}
	if err != nil {
		return nil, apierror.Wrap(err, apierror.ErrInternalServer, "failed to load session")
	}
	session.Identity = identity
	return session, nil
}

func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	if err := s.cache.Set(ctx, sessionKey(session.Identity), session, s.ttl); err != nil {
		return apierror.Wrap(err, apierror.ErrInternalServer, "failed to save session")
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, identity string) error {
	if err := s.cache.Delete(ctx, sessionKey(identity)); err != nil {
		return apierror.Wrap(err, apierror.ErrInternalServer, "failed to clear session")
	}
	return nil
}

// identityGate allows one in-flight action per identity across every
// platform process sharing the redis instance.
type identityGate struct {
	client      redis.UniversalClient
	ttl         time.Duration
	wait        bool
	waitTimeout time.Duration
}

func newIdentityGate(client redis.UniversalClient, o config.OrchestratorConfig) *identityGate {
	return &identityGate{
		client:      client,
		ttl:         o.LockTTL(),
		wait:        o.WaitForLock,
		waitTimeout: o.LockWaitTimeout(),
	}
}

// acquire takes the identity's lock, waiting for it when configured to.
// A held lock is ACTION_IN_FLIGHT. The returned release never fails the
// caller; it runs even after ctx is cancelled.
func (g *identityGate) acquire(ctx context.Context, identity string) (func(), error) {
	locker := redlock.NewIdentityLocker(g.client, identity)

	var err error
	if g.wait {
		err = locker.WaitLock(ctx, g.ttl, g.waitTimeout)
	} else {
		err = locker.Lock(ctx, g.ttl)
	}
	if errors.Is(err, redlock.ErrLockHeld) {
		return nil, apierror.NewAPIError(apierror.ErrActionInFlight,
			fmt.Sprintf("another action for %s is still in flight", identity), nil)
	}
	if err != nil {
		return nil, apierror.Wrap(err, apierror.ErrInternalServer, "failed to acquire identity lock")
	}

	return g.hold(ctx, locker, identity), nil
}

// tryAcquire takes the lock only if it is free right now.
func (g *identityGate) tryAcquire(ctx context.Context, identity string) (func(), bool) {
	locker := redlock.NewIdentityLocker(g.client, identity)
	if err := locker.Lock(ctx, g.ttl); err != nil {
		return nil, false
	}
	return g.hold(ctx, locker, identity), true
}

// hold extends the held lock every third of its TTL until the returned
// release stops the renewal and unlocks.
func (g *identityGate) hold(ctx context.Context, locker *redlock.Locker, identity string) func() {
	ctx = context.WithoutCancel(ctx)
	entry := logrus.WithField("identity", identity)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		interval := g.ttl / 3
		if interval <= 0 {
			<-done
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := locker.ExtendLock(ctx, g.ttl); err != nil {
					entry.WithError(err).Error("failed to extend identity lock")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		if err := locker.Unlock(ctx); err != nil {
			entry.WithError(err).Error("failed to release identity lock")
		}
	}
}
