package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/helpdesk-realtime/internal/config"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// TokenManager handles issuing and validating session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Claims describes the JWT payload. ActAs and ActAsRoles are set when an
// admin works on behalf of another user.
type Claims struct {
	Roles       []domain.Role `json:"roles"`
	DisplayName string        `json:"name,omitempty"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	ActAs       string        `json:"act_as,omitempty"`
	ActAsRoles  []domain.Role `json:"act_as_roles,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token carrying session.
func (tm *TokenManager) GenerateToken(session domain.Session) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Roles:       session.Roles,
		DisplayName: session.Profile.DisplayName,
		AvatarURL:   session.Profile.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if session.Impersonating() {
		claims.ActAs = session.EffectiveUserID
		claims.ActAsRoles = session.EffectiveRoles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Authenticate parses a token and builds the session it describes.
func (tm *TokenManager) Authenticate(tokenStr string) (domain.Session, error) {
	claims, err := tm.ParseToken(tokenStr)
	if err != nil {
		return domain.Session{}, err
	}
	return SessionFromClaims(claims)
}
