package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	h1, err := generatePasswordHash("hunter22")
	require.NoError(t, err)
	h2, err := generatePasswordHash("hunter22")
	require.NoError(t, err)

	// salted hashes differ but both verify
	assert.NotEqual(t, h1, h2)
	assert.True(t, comparePasswordHash("hunter22", h1))
	assert.True(t, comparePasswordHash("hunter22", h2))
	assert.False(t, comparePasswordHash("hunter23", h1))
	assert.False(t, comparePasswordHash("hunter22", "not-a-bcrypt-hash"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := createAccessToken("s3cret", "alice", roleAdmin)
	require.NoError(t, err)

	username, role, err := parseAccessToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.Equal(t, roleAdmin, role)
}

func TestAccessTokenRejected(t *testing.T) {
	token, err := createAccessToken("s3cret", "alice", roleViewer)
	require.NoError(t, err)

	_, _, err = parseAccessToken("other-secret", token)
	assert.ErrorIs(t, err, errInvalidToken)

	_, _, err = parseAccessToken("s3cret", "not.a.token")
	assert.ErrorIs(t, err, errInvalidToken)

	_, _, err = parseAccessToken("s3cret", "")
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestAccessTokenExpired(t *testing.T) {
	claims := &tokenClaims{
		Role: roleViewer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bob",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, _, err = parseAccessToken("s3cret", token)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestAccessTokenEmptySubject(t *testing.T) {
	claims := &tokenClaims{
		Role: roleViewer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, _, err = parseAccessToken("s3cret", token)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestBearerToken(t *testing.T) {
	e := echo.New()
	withHeader := func(value string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if value != "" {
			req.Header.Set(echo.HeaderAuthorization, value)
		}
		return e.NewContext(req, httptest.NewRecorder())
	}

	assert.Equal(t, "abc", bearerToken(withHeader("Bearer abc")))
	assert.Equal(t, "abc", bearerToken(withHeader("bearer abc")))
	assert.Equal(t, "", bearerToken(withHeader("")))
	assert.Equal(t, "", bearerToken(withHeader("Basic abc")))
	assert.Equal(t, "", bearerToken(withHeader("Bearer")))
}
