package webauth

import (
	"context"
	"sync"

	internalaudit "github.com/lingoleap/webauth/internal/audit"
	"go.uber.org/zap"
)

// unauthorizedGuard makes the 401 policy run once per credential epoch.
// Callers that lose the race wait on done until the winner has logged out,
// then return without repeating the logout or the redirect. mu is never held
// across Logout's observers or Navigate.
type unauthorizedGuard struct {
	mu         sync.Mutex
	handled    bool
	epoch      uint64
	done       chan struct{}
	navigating bool
}

// handleUnauthorized runs the 401 policy for a request that carried the
// credential of the given epoch. A 401 raised while the redirect to login is
// running (for example by a request the login page sends) belongs to that
// redirect and is suppressed.
func (s *Session) handleUnauthorized(ctx context.Context, epoch uint64, nav Navigator, requestID string) {
	g := &s.unauthorized
	g.mu.Lock()
	if g.navigating || (g.handled && epoch <= g.epoch) {
		done := g.done
		g.mu.Unlock()

		s.metrics.Inc(MetricUnauthorizedSuppressed)
		s.logger.Debug("401 already handled for this credential", zap.Uint64("epoch", epoch), zap.String("request_id", requestID))
		s.emit(ctx, internalaudit.Event{EventType: internalaudit.TypeUnauthorizedDup, Epoch: epoch, RequestID: requestID, Success: true})
		if done != nil {
			select {
			case <-done:
			case <-ctxOrBackground(ctx).Done():
			}
		}
		return
	}
	done := make(chan struct{})
	g.handled, g.epoch, g.done = true, epoch, done
	g.mu.Unlock()

	loggedOut, err := s.expire(ctx, epoch)
	if err != nil {
		s.logger.Warn("401 logout could not clear the token store", zap.Error(err), zap.String("request_id", requestID))
	}

	g.mu.Lock()
	g.navigating = loggedOut
	g.mu.Unlock()
	close(done)

	if !loggedOut {
		s.metrics.Inc(MetricUnauthorizedStale)
		s.logger.Info("ignoring 401 for a replaced credential", zap.Uint64("epoch", epoch), zap.String("request_id", requestID))
		return
	}

	defer func() {
		g.mu.Lock()
		g.navigating = false
		g.mu.Unlock()
	}()
	s.logger.Info("session expired by server, redirecting to login", zap.Uint64("epoch", epoch), zap.String("request_id", requestID))
	nav.Navigate(s.LoginRoute())
}
