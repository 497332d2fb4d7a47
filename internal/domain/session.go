package domain

// Role enumerates caller roles carried by a session.
type Role string

const (
	RoleRequester Role = "requester"
	RoleAgent     Role = "agent"
	RoleAdmin     Role = "admin"
)

// Session is the identity of one request or realtime connection. It is
// built once and passed explicitly to every component that needs it.
// UserID and Roles describe the authenticated caller; when an admin
// impersonates someone, the Effective fields describe the impersonated
// user and ImpersonatorID keeps the admin.
type Session struct {
	UserID          string
	Roles           []Role
	ImpersonatorID  *string
	EffectiveUserID string
	EffectiveRoles  []Role
	Profile         ProfileSnapshot
}

// NewSession builds a session acting as itself.
func NewSession(userID string, roles ...Role) Session {
	return Session{
		UserID:          userID,
		Roles:           roles,
		EffectiveUserID: userID,
		EffectiveRoles:  roles,
	}
}

// Impersonate returns a session where the caller acts as target.
func (s Session) Impersonate(targetID string, targetRoles ...Role) Session {
	actor := s.UserID
	return Session{
		UserID:          s.UserID,
		Roles:           s.Roles,
		ImpersonatorID:  &actor,
		EffectiveUserID: targetID,
		EffectiveRoles:  targetRoles,
		Profile:         s.Profile,
	}
}

// Impersonating reports whether the effective user differs from the caller.
func (s Session) Impersonating() bool {
	return s.ImpersonatorID != nil
}

// HasRole reports whether the effective roles include r.
func (s Session) HasRole(r Role) bool {
	for _, role := range s.EffectiveRoles {
		if role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the session acts as support staff.
func (s Session) IsStaff() bool {
	return s.HasRole(RoleAgent) || s.HasRole(RoleAdmin)
}
