package model

// Session is the authenticated identity the agent acts on behalf of.
type Session struct {
	// UserID is the backend identifier of the signed-in user.
	UserID string `json:"userId"`

	// Role is the user's role name (staff, branch manager, ...).
	Role string `json:"role"`

	// BranchID is the branch the user is attached to, if any.
	BranchID string `json:"branchId,omitempty"`

	// Token is the bearer token for the backend and realtime channel.
	Token string `json:"token"`
}

// Valid reports whether the session carries enough identity to act on.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}
