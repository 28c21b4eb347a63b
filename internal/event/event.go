package event

type Type string

const (
	TypeUserRegistered  Type = "user.registered"
	TypeRegisterFailed  Type = "user.register_failed"
	TypeLoginSucceeded  Type = "auth.login_succeeded"
	TypeLoginFailed     Type = "auth.login_failed"
	TypeTokenRefreshed  Type = "auth.token_refreshed"
	TypeRefreshRejected Type = "auth.refresh_rejected"
)

// Reasons attached to failure events. They are internal: the HTTP layer
// never sees them.
const (
	ReasonUnknownEmail  = "unknown_email"
	ReasonNoPassword    = "no_password"
	ReasonWrongPassword = "wrong_password"
	ReasonCorruptHash   = "corrupt_hash"
	ReasonDuplicate     = "duplicate_email"
	ReasonInvalidToken  = "invalid_token"
	ReasonUnknownUser   = "unknown_user"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // user id when known
	Email     string `json:"email,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
