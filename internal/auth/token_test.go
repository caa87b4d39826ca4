package auth

import (
	"testing"
	"time"

	"github.com/dkeye/Live/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestResolver_IssueAndResolve(t *testing.T) {
	req := require.New(t)
	r, err := NewResolver("test-secret", "live")
	req.NoError(err)

	token, err := r.Issue("alice", domain.RoleHost, time.Minute)
	req.NoError(err)

	id, err := r.Resolve(token)
	req.NoError(err)
	req.Equal(domain.Identity{ID: "alice", Role: domain.RoleHost}, id)
}

func TestResolver_Rejects(t *testing.T) {
	req := require.New(t)
	r, err := NewResolver("test-secret", "live")
	req.NoError(err)
	other, err := NewResolver("other-secret", "live")
	req.NoError(err)
	foreignIssuer, err := NewResolver("test-secret", "someone-else")
	req.NoError(err)

	forged, err := other.Issue("mallory", domain.RoleHost, time.Minute)
	req.NoError(err)
	expired, err := r.Issue("bob", domain.RoleAttendee, -time.Minute)
	req.NoError(err)
	wrongIssuer, err := foreignIssuer.Issue("bob", domain.RoleAttendee, time.Minute)
	req.NoError(err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "eve", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"Missing token", ""},
		{"Garbage", "not-a-jwt"},
		{"Wrong key", forged},
		{"Expired", expired},
		{"Wrong issuer", wrongIssuer},
		{"Algorithm none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.token)
			require.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestResolver_RoleMapping(t *testing.T) {
	req := require.New(t)
	r, err := NewResolver("test-secret", "")
	req.NoError(err)

	for role, want := range map[domain.Role]domain.Role{
		"writer":            domain.RoleHost,
		domain.RoleHost:     domain.RoleHost,
		domain.RoleAttendee: domain.RoleAttendee,
		"reader":            domain.RoleAttendee,
	} {
		token, err := r.Issue("carol", role, time.Minute)
		req.NoError(err)
		id, err := r.Resolve(token)
		req.NoError(err)
		req.Equal(want, id.Role, "role %s", role)
	}
}

func TestNewResolver_EmptySecret(t *testing.T) {
	_, err := NewResolver("", "live")
	require.Error(t, err)
}
