package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager(t *testing.T) {
	manager := NewTokenManager(testSecret, "keyguard-pro", time.Hour)

	t.Run("签发并验证", func(t *testing.T) {
		token, expiresAt, err := manager.Issue("job-1")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

		claims, err := manager.Validate(token, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", claims.JobID)
		assert.Equal(t, "keyguard-pro", claims.Issuer)
	})

	t.Run("令牌不能用于其他任务", func(t *testing.T) {
		token, _, err := manager.Issue("job-1")
		require.NoError(t, err)

		_, err = manager.Validate(token, "job-2")
		assert.ErrorIs(t, err, ErrTokenScope)
	})

	t.Run("空令牌和伪造令牌", func(t *testing.T) {
		_, err := manager.Validate("", "job-1")
		assert.ErrorIs(t, err, ErrInvalidToken)

		_, err = manager.Validate("not-a-jwt", "job-1")
		assert.ErrorIs(t, err, ErrInvalidToken)

		other := NewTokenManager("ffffffffffffffffffffffffffffffff", "keyguard-pro", time.Hour)
		token, _, err := other.Issue("job-1")
		require.NoError(t, err)
		_, err = manager.Validate(token, "job-1")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签发者不符", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else", time.Hour)
		token, _, err := other.Issue("job-1")
		require.NoError(t, err)

		_, err = manager.Validate(token, "job-1")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌", func(t *testing.T) {
		expired := NewTokenManager(testSecret, "keyguard-pro", time.Hour)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := expired.Issue("job-1")
		require.NoError(t, err)

		_, err = manager.Validate(token, "job-1")
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("拒绝none算法", func(t *testing.T) {
		claims := JobClaims{JobID: "job-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "keyguard-pro"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = manager.Validate(token, "job-1")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
