package auth

import (
	"errors"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// Session construction errors.
var (
	ErrMissingSubject      = errors.New("token has no subject")
	ErrUnknownRole         = errors.New("token carries an unknown role")
	ErrImpersonationDenied = errors.New("only admins may act on behalf of another user")
)

// SessionFromClaims builds the session once per request or connection.
// Impersonation becomes the Effective fields of the session.
func SessionFromClaims(claims *Claims) (domain.Session, error) {
	if claims == nil || claims.Subject == "" {
		return domain.Session{}, ErrMissingSubject
	}
	if err := checkRoles(claims.Roles); err != nil {
		return domain.Session{}, err
	}
	session := domain.NewSession(claims.Subject, claims.Roles...)
	session.Profile = domain.ProfileSnapshot{
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
		Role:        primaryRole(claims.Roles),
	}
	if claims.ActAs == "" || claims.ActAs == claims.Subject {
		return session, nil
	}
	if !session.HasRole(domain.RoleAdmin) {
		return domain.Session{}, ErrImpersonationDenied
	}
	if err := checkRoles(claims.ActAsRoles); err != nil {
		return domain.Session{}, err
	}
	return session.Impersonate(claims.ActAs, claims.ActAsRoles...), nil
}

func checkRoles(roles []domain.Role) error {
	for _, r := range roles {
		switch r {
		case domain.RoleRequester, domain.RoleAgent, domain.RoleAdmin:
		default:
			return ErrUnknownRole
		}
	}
	return nil
}

func primaryRole(roles []domain.Role) string {
	best := ""
	for _, r := range roles {
		switch {
		case r == domain.RoleAdmin:
			return string(r)
		case r == domain.RoleAgent:
			best = string(r)
		case best == "":
			best = string(r)
		}
	}
	return best
}
