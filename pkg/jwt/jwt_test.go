package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-that-is-long-enough-for-hs256"

func TestGenerateAndValidate(t *testing.T) {
	g := NewGenerator(TokenConfig{Secret: secret, Issuer: "leakwatch", Duration: time.Minute})

	tok, exp, err := g.Generate("alice", RoleCollector)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := g.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, RoleCollector, claims.Role)
	assert.Equal(t, "leakwatch", claims.Issuer)
	assert.True(t, claims.CanCommand())
}

func TestGenerateRejects(t *testing.T) {
	g := NewGenerator(TokenConfig{Secret: secret})

	_, _, err := g.Generate("", RoleUser)
	assert.ErrorIs(t, err, ErrEmptySubject)

	_, _, err = g.Generate("bob", "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateToken(t *testing.T) {
	valid, err := GenerateToken("carol", RoleUser, secret, time.Minute)
	require.NoError(t, err)

	expired, err := GenerateToken("carol", RoleUser, secret, -time.Minute)
	require.NoError(t, err)

	noneAlg, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		Role:             RoleAdministrator,
		RegisteredClaims: gojwt.RegisteredClaims{Subject: "mallory"},
	}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr error
	}{
		{"valid", valid, secret, nil},
		{"wrong secret", valid, "other-secret", ErrInvalidToken},
		{"expired", expired, secret, ErrExpiredToken},
		{"alg none", noneAlg, secret, ErrInvalidToken},
		{"garbage", "not.a.token", secret, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "carol", claims.Username())
			assert.False(t, claims.CanCommand())
		})
	}
}

func TestRoles(t *testing.T) {
	assert.True(t, IsValidRole(RoleAdministrator))
	assert.False(t, IsValidRole("root"))
	assert.True(t, (&Claims{Role: RoleAdministrator}).CanCommand())
}
