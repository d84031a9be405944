package model

// AuditActor is the authenticated caller of a request, as recorded on
// tombstones and in logs.
type AuditActor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	IP       string `json:"ip,omitempty"`
	// Elevated is decided by the role policy when the actor is built.
	Elevated bool `json:"-"`
}

func (a AuditActor) ActorID() string { return a.UserID }

func (a AuditActor) CanHardDelete() bool { return a.Elevated }
