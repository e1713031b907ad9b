package secretary

import (
	"testing"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelclaims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretaryServiceEmptyKey(t *testing.T) {
	_, err := NewSecretaryService(&config.SecretConfig{})
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	s, err := NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	token, err := s.GetTokenForUser("user1", modelclaims.RoleMember)
	require.NoError(t, err)
	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.UserID)
	assert.Equal(t, modelclaims.RoleMember, claims.Role)
}

func TestAdminRoleSurvivesRoundTrip(t *testing.T) {
	s, err := NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	token, err := s.GetTokenForUser("admin1", modelclaims.RoleAdmin)
	require.NoError(t, err)
	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, modelclaims.RoleAdmin, claims.Role)
}

func TestValidateTokenWrongKey(t *testing.T) {
	issuer, err := NewSecretaryService(&config.SecretConfig{SecretKey: "key-one"})
	require.NoError(t, err)
	verifier, err := NewSecretaryService(&config.SecretConfig{SecretKey: "key-two"})
	require.NoError(t, err)
	token, err := issuer.GetTokenForUser("user1", modelclaims.RoleMember)
	require.NoError(t, err)
	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	s, err := NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	_, err = s.ValidateToken("not.a.token")
	require.Error(t, err)
}
