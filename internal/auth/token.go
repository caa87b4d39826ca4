// Package auth resolves the bearer credential presented when a connection is established.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Live/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingToken = errors.New("missing credential")

// Claims defines the data stored inside the JWT. The subject is the participant identity.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver validates HS256 tokens issued for this service.
type Resolver struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewResolver(secret, issuer string) (*Resolver, error) {
	if secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	return &Resolver{key: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue creates a signed token for id; used by the dev token tool and tests.
func (r *Resolver) Issue(id domain.ParticipantID, role domain.Role, ttl time.Duration) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	now := r.now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
}

// Resolve parses and validates a token and returns the identity it carries.
// Every failure is reported as Unauthenticated.
func (r *Resolver) Resolve(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.Unauthenticated(ErrMissingToken.Error())
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return r.key, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, domain.Unauthenticated(err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, domain.Unauthenticated(jwt.ErrSignatureInvalid.Error())
	}

	id := domain.ParticipantID(claims.Subject)
	if err := id.Validate(); err != nil {
		return domain.Identity{}, domain.Unauthenticated(fmt.Sprintf("subject: %v", err))
	}
	return domain.Identity{ID: id, Role: parseRole(claims.Role)}, nil
}

// parseRole accepts "writer" as host, which is what the catalog side calls presenters.
func parseRole(s string) domain.Role {
	switch s {
	case string(domain.RoleHost), "writer":
		return domain.RoleHost
	default:
		return domain.RoleAttendee
	}
}
