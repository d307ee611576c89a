package webauth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/lingoleap/webauth/internal/audit"
	"github.com/lingoleap/webauth/jwt"
	"github.com/lingoleap/webauth/router"
	"go.uber.org/zap"
)

// sessionState is immutable once published.
type sessionState struct {
	state State
	user  *UserProfile
	token string
	epoch uint64
}

func (s *sessionState) snapshot() Snapshot {
	snap := Snapshot{State: s.state, Epoch: s.epoch}
	if s.user != nil {
		u := s.user.Clone()
		snap.User = &u
	}
	return snap
}

type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// Session owns the signed-in user and the bearer token. Mutations are
// serialized; reads never block.
type Session struct {
	config  Config
	store   Store
	logger  *zap.Logger
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	routes  router.Table
	now     func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[sessionState]
	closed  atomic.Bool

	obsMu     sync.Mutex
	observers []subscriber
	nextObsID uint64

	unauthorized unauthorizedGuard
}

/*
====================================
READERS
====================================
*/

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.current.Load().state
}

// IsAuthenticated reports whether a user is held.
func (s *Session) IsAuthenticated() bool {
	return s.current.Load().user != nil
}

// Profile returns a copy of the current user.
func (s *Session) Profile() (UserProfile, bool) {
	cur := s.current.Load()
	if cur.user == nil {
		return UserProfile{}, false
	}
	return cur.user.Clone(), true
}

// Token returns the bearer token, or "" when anonymous.
func (s *Session) Token() string {
	return s.current.Load().token
}

// Snapshot returns state and user read together.
func (s *Session) Snapshot() Snapshot {
	return s.current.Load().snapshot()
}

// LandingRoute is the dashboard for the current user's role, or home when anonymous.
func (s *Session) LandingRoute() Route {
	cur := s.current.Load()
	if cur.user == nil {
		return s.routes.Home
	}
	return s.routes.For(cur.user.Role)
}

// LoginRoute is where unauthenticated users are sent.
func (s *Session) LoginRoute() Route {
	return Route(s.config.Routes.Login)
}

// Routes returns the role router table in use.
func (s *Session) Routes() router.Table {
	return s.routes
}

// Config returns a copy of the configuration the session was built with.
func (s *Session) Config() Config {
	return cloneConfig(s.config)
}

// credentials returns the token together with the epoch it belongs to.
func (s *Session) credentials() (string, uint64) {
	cur := s.current.Load()
	return cur.token, cur.epoch
}

/*
====================================
MUTATIONS
====================================
*/

// Hydrate restores the session from the token store. It only acts in
// StateUninitialized; later calls return nil without touching the store.
// On a store error the session ends anonymous and the error is returned.
func (s *Session) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	cur := s.current.Load()
	if cur.state != StateUninitialized {
		return nil
	}
	s.publish(&sessionState{state: StateHydrating, epoch: cur.epoch})

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	creds, ok, err := s.store.Load(sctx)
	if err != nil {
		s.metrics.Inc(MetricStoreFailure)
		s.metrics.Inc(MetricHydrateAnonymous)
		s.logger.Error("hydrate: token store load failed", zap.Error(err))
		s.publish(&sessionState{state: StateAnonymous, epoch: cur.epoch})
		s.emit(ctx, internalaudit.Event{EventType: internalaudit.TypeHydrated, Error: err.Error()})
		return fmt.Errorf("hydrate: %w", err)
	}
	if !ok {
		s.metrics.Inc(MetricHydrateAnonymous)
		s.logger.Debug("hydrate: no stored session")
		s.publish(&sessionState{state: StateAnonymous, epoch: cur.epoch})
		s.emit(ctx, internalaudit.Event{EventType: internalaudit.TypeHydrated})
		return nil
	}

	if s.config.Session.DiscardExpiredTokens && jwt.ExpiredAt(creds.Token, s.now(), s.config.Session.ExpiryLeeway) {
		s.metrics.Inc(MetricHydrateDiscarded)
		s.logger.Info("hydrate: discarding expired token",
			zap.String("user_id", creds.Profile.ID), fingerprint(creds.Token))
		if err := s.store.Clear(sctx); err != nil {
			s.metrics.Inc(MetricStoreFailure)
			s.logger.Warn("hydrate: clearing expired token failed", zap.Error(err))
		}
		s.publish(&sessionState{state: StateAnonymous, epoch: cur.epoch})
		s.emit(ctx, internalaudit.Event{
			EventType: internalaudit.TypeHydrateDiscard,
			UserID:    creds.Profile.ID,
			Role:      creds.Profile.Role.String(),
			Success:   true,
		})
		return nil
	}

	user := creds.Profile
	next := &sessionState{state: StateAuthenticated, user: &user, token: creds.Token, epoch: cur.epoch + 1}
	s.metrics.Inc(MetricHydrateAuthenticated)
	s.logger.Debug("hydrate: session restored",
		zap.String("user_id", user.ID), zap.String("role", user.Role.String()), fingerprint(creds.Token))
	s.publish(next)
	s.emit(ctx, internalaudit.Event{
		EventType: internalaudit.TypeHydrated,
		UserID:    user.ID,
		Role:      user.Role.String(),
		Epoch:     next.epoch,
		Success:   true,
	})
	return nil
}

// Login stores token and user and makes them current. The store is written
// first; if that fails the session is left as it was.
func (s *Session) Login(ctx context.Context, token string, user UserProfile) error {
	if token == "" || user.ID == "" {
		s.metrics.Inc(MetricLoginFailure)
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Save(sctx, token, user); err != nil {
		s.metrics.Inc(MetricLoginFailure)
		s.metrics.Inc(MetricStoreFailure)
		s.logger.Error("login: token store save failed", zap.String("user_id", user.ID), zap.Error(err))
		s.emit(ctx, internalaudit.Event{EventType: internalaudit.TypeLogin, UserID: user.ID, Error: err.Error()})
		return fmt.Errorf("login: %w", err)
	}

	owned := user.Clone()
	next := &sessionState{
		state: StateAuthenticated,
		user:  &owned,
		token: token,
		epoch: s.current.Load().epoch + 1,
	}
	s.metrics.Inc(MetricLogin)
	s.logger.Info("login", zap.String("user_id", owned.ID), zap.String("role", owned.Role.String()), fingerprint(token))
	s.publish(next)
	s.emit(ctx, internalaudit.Event{
		EventType: internalaudit.TypeLogin,
		UserID:    owned.ID,
		Role:      owned.Role.String(),
		Epoch:     next.epoch,
		Success:   true,
	})
	return nil
}

// Logout clears the store and the in-memory session. The session becomes
// anonymous even when clearing the store fails; that error is returned.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.logoutLocked(ctx, internalaudit.TypeLogout)
	s.metrics.Inc(MetricLogout)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// expire is the 401 path: it logs out only if epoch is still the current
// credential. It reports whether the session was logged out.
func (s *Session) expire(ctx context.Context, epoch uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load().epoch != epoch {
		return false, nil
	}
	err := s.logoutLocked(ctx, internalaudit.TypeForcedLogout)
	s.metrics.Inc(MetricForcedLogout)
	return true, err
}

func (s *Session) logoutLocked(ctx context.Context, eventType string) error {
	cur := s.current.Load()

	sctx, cancel := s.storeContext(ctx)
	storeErr := s.store.Clear(sctx)
	cancel()
	if storeErr != nil {
		s.metrics.Inc(MetricStoreFailure)
		s.logger.Error("logout: token store clear failed", zap.Error(storeErr))
	}

	event := internalaudit.Event{EventType: eventType, Epoch: cur.epoch, Success: storeErr == nil}
	if cur.user != nil {
		event.UserID = cur.user.ID
		event.Role = cur.user.Role.String()
	}
	if storeErr != nil {
		event.Error = storeErr.Error()
	}

	s.logger.Info(eventType, zap.String("user_id", event.UserID), zap.Uint64("epoch", cur.epoch))
	// requests sent after this point belong to a new epoch, so a later 401 is handled again
	s.publish(&sessionState{state: StateAnonymous, epoch: cur.epoch + 1})
	s.emit(ctx, event)
	return storeErr
}

// UpdateUser merges patch into the current user and writes the result
// through to the store. Keys in patch replace whole fields. When no user is
// signed in it does nothing and returns nil.
func (s *Session) UpdateUser(ctx context.Context, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	cur := s.current.Load()
	if cur.state != StateAuthenticated || cur.user == nil {
		s.metrics.Inc(MetricProfileUpdateIgnored)
		s.logger.Debug("update user ignored: not authenticated", zap.Stringer("state", cur.state))
		return nil
	}

	merged, err := cur.user.Merge(patch)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Save(sctx, cur.token, merged); err != nil {
		s.metrics.Inc(MetricStoreFailure)
		s.logger.Error("update user: token store save failed", zap.String("user_id", cur.user.ID), zap.Error(err))
		return fmt.Errorf("update user: %w", err)
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}

	s.metrics.Inc(MetricProfileUpdate)
	s.logger.Debug("user updated", zap.String("user_id", merged.ID), zap.Strings("fields", keys))
	s.publish(&sessionState{state: StateAuthenticated, user: &merged, token: cur.token, epoch: cur.epoch})
	s.emit(ctx, internalaudit.Event{
		EventType: internalaudit.TypeProfileUpdated,
		UserID:    merged.ID,
		Role:      merged.Role.String(),
		Epoch:     cur.epoch,
		Success:   true,
	})
	return nil
}

/*
====================================
OBSERVERS
====================================
*/

// Subscribe registers fn to run after every state change. Observers run
// synchronously, in subscription order, before the mutation returns, so they
// must not call Login, Logout, UpdateUser or Hydrate. The returned function
// removes the observer.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, subscriber{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// publish must be called with s.mu held.
func (s *Session) publish(next *sessionState) {
	s.current.Store(next)

	s.obsMu.Lock()
	observers := make([]subscriber, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(next.snapshot())
	}
}

/*
====================================
LIFECYCLE
====================================
*/

// Close flushes the audit stream. Later Hydrate, Login and UpdateUser calls
// fail with ErrSessionClosed; Logout and reads keep working. The token store is closed by whoever opened it.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.audit.Close()
	return nil
}

// MetricsSnapshot returns the session and client counters.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped reports audit events dropped because the buffer was full.
func (s *Session) AuditDropped() uint64 {
	return s.audit.Dropped()
}

func (s *Session) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.config.Session.StoreTimeout > 0 {
		return context.WithTimeout(ctx, s.config.Session.StoreTimeout)
	}
	return ctx, func() {}
}

func (s *Session) emit(ctx context.Context, event internalaudit.Event) {
	if s.audit == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	s.audit.Emit(ctxOrBackground(ctx), event)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
