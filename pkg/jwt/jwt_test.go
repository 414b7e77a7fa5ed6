package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-access-secret-key-for-testing-purposes"
	testIssuer = "campus-identity"
)

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewService(t *testing.T) {
	service := NewService(testSecret, testIssuer)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, testIssuer, service.issuer)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer)
	roles := []string{"student"}

	token, err := service.GenerateAccessToken("stu-1", roles, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.StudentID)
	assert.Equal(t, "stu-1", claims.Student())
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer)

	t.Run("Malformed token", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid.token.here")
		assert.Error(t, err)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := NewService("wrong-secret", testIssuer).GenerateAccessToken("stu-1", nil, time.Hour)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Wrong issuer", func(t *testing.T) {
		token, err := NewService(testSecret, "someone-else").GenerateAccessToken("stu-1", nil, time.Hour)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Any issuer when none configured", func(t *testing.T) {
		token, err := NewService(testSecret, "someone-else").GenerateAccessToken("stu-1", nil, time.Hour)
		require.NoError(t, err)

		claims, err := NewService(testSecret, "").ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "stu-1", claims.Student())
	})

	t.Run("Expired token", func(t *testing.T) {
		token, err := service.GenerateAccessToken("stu-1", nil, -time.Hour)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenExpired))
	})

	t.Run("Subject fallback", func(t *testing.T) {
		token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject:   "stu-42",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})

		claims, err := service.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Empty(t, claims.StudentID)
		assert.Equal(t, "stu-42", claims.Student())
		assert.Empty(t, claims.TokenType)
	})

	t.Run("No student id", func(t *testing.T) {
		token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Refresh token rejected", func(t *testing.T) {
		token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
			StudentID: "stu-1",
			TokenType: TokenType("refresh"),
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token type")
	})

	t.Run("Other HMAC algorithm rejected", func(t *testing.T) {
		token := signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), Claims{
			StudentID: "stu-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}

func TestGetTokenExpiry(t *testing.T) {
	service := NewService(testSecret, testIssuer)

	token, err := service.GenerateAccessToken("stu-1", nil, time.Hour)
	require.NoError(t, err)

	expiry, err := service.GetTokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	_, err = service.GetTokenExpiry("invalid.token.here")
	assert.Error(t, err)
}

func TestConcurrentTokenValidation(t *testing.T) {
	service := NewService(testSecret, testIssuer)

	done := make(chan bool)
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			token, err := service.GenerateAccessToken("stu-1", []string{"student"}, time.Hour)
			if err != nil {
				errs <- err
				done <- true
				return
			}

			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	close(errs)
	assert.Empty(t, errs)
}
