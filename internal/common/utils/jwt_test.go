// internal/common/utils/jwt_test.go

package utils

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
    claims := &JWTClaims{
        UserID:    42,
        Email:     "alice@example.com",
        Username:  "alice",
        Type:      "access",
        ExpiresAt: time.Now().Add(time.Hour).Unix(),
        IssuedAt:  time.Now().Unix(),
    }

    token, err := GenerateJWT(claims, "test-secret")
    require.NoError(t, err)

    parsed, err := ValidateJWT(token, "test-secret")
    require.NoError(t, err)
    assert.Equal(t, int64(42), parsed.UserID)
    assert.Equal(t, "access", parsed.Type)
    assert.Equal(t, "alice", parsed.Username)
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
    claims := &JWTClaims{
        UserID:    42,
        Type:      "access",
        ExpiresAt: time.Now().Add(time.Hour).Unix(),
    }
    token, err := GenerateJWT(claims, "test-secret")
    require.NoError(t, err)

    _, err = ValidateJWT(token, "other-secret")
    assert.Error(t, err)
}

func TestValidateJWTRejectsExpired(t *testing.T) {
    claims := &JWTClaims{
        UserID:    42,
        Type:      "access",
        ExpiresAt: time.Now().Add(-time.Hour).Unix(),
    }
    token, err := GenerateJWT(claims, "test-secret")
    require.NoError(t, err)

    _, err = ValidateJWT(token, "test-secret")
    assert.Error(t, err)
}

func TestValidateJWTRejectsGarbage(t *testing.T) {
    _, err := ValidateJWT("not-a-token", "test-secret")
    assert.Error(t, err)
}
