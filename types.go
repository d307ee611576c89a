package webauth

import (
	"io"

	internalaudit "github.com/lingoleap/webauth/internal/audit"
	"github.com/lingoleap/webauth/profile"
	"github.com/lingoleap/webauth/router"
	"github.com/lingoleap/webauth/store"
	"go.uber.org/zap"
)

// UserProfile is the signed-in user's identity.
type UserProfile = profile.UserProfile

// Role is the user's platform role.
type Role = profile.Role

// Patch is a partial profile applied by UpdateUser.
type Patch = profile.Patch

const (
	RoleAdmin    = profile.RoleAdmin
	RoleLecturer = profile.RoleLecturer
	RoleStudent  = profile.RoleStudent
)

// Route is an application path.
type Route = router.Route

// Store persists the token and profile pair.
type Store = store.Store

// State is the session lifecycle state.
type State uint8

const (
	// StateUninitialized is the state before Hydrate.
	StateUninitialized State = iota
	// StateHydrating is the state while the token store is being read.
	StateHydrating
	// StateAuthenticated means a token and profile are held.
	StateAuthenticated
	// StateAnonymous means neither is held.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateHydrating:
		return "HYDRATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateAnonymous:
		return "ANONYMOUS"
	default:
		return "UNKNOWN"
	}
}

// Settled reports whether hydration has finished.
func (s State) Settled() bool {
	return s == StateAuthenticated || s == StateAnonymous
}

// Snapshot is a consistent view of the session. User is nil unless State is
// StateAuthenticated.
type Snapshot struct {
	State State
	User  *UserProfile
	Epoch uint64
}

// IsAuthenticated reports whether a user is present.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// AuthResponse is the body of the platform's login endpoint.
type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserProfile `json:"user"`
}

// Navigator moves the application to another route. The client uses it to
// send the user to the login page after a 401. Navigate may send requests
// through the same Client; a 401 they receive while Navigate is running is
// counted as suppressed and does not trigger a second redirect.
type Navigator interface {
	Navigate(route Route)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route Route)

func (f NavigatorFunc) Navigate(route Route) { f(route) }

// AuditEvent is a session lifecycle record.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the session's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that logs events.
type ZapSink = internalaudit.ZapSink

// Audit event types.
const (
	AuditHydrated               = internalaudit.TypeHydrated
	AuditHydrateDiscarded       = internalaudit.TypeHydrateDiscard
	AuditLogin                  = internalaudit.TypeLogin
	AuditLogout                 = internalaudit.TypeLogout
	AuditForcedLogout           = internalaudit.TypeForcedLogout
	AuditProfileUpdated         = internalaudit.TypeProfileUpdated
	AuditUnauthorizedSuppressed = internalaudit.TypeUnauthorizedDup
)

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging through logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
