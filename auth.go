package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTTL        = 7 * 24 * time.Hour
	minPasswordLen  = 6
	defaultAdminPwd = "admin"
)

var (
	errNotAuthenticated = errors.New("Not authenticated")
	errInvalidToken     = errors.New("Invalid or expired token")
	errTokenUserGone    = errors.New("User not found")
	errAdminOnly        = errors.New("Admin only")
)

func generatePasswordHash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 11)
	if err != nil {
		return "", fmt.Errorf("error bcrypt.GenerateFromPassword: %w", err)
	}
	return string(hashed), nil
}

// comparePasswordHash never fails hard: a malformed hash is simply a
// mismatch.
func comparePasswordHash(password, passwordHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) == nil
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func createAccessToken(secret, username, role string) (string, error) {
	claims := &tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("error sign token: %w", err)
	}
	return signed, nil
}

// parseAccessToken checks the signature and expiry and returns the embedded
// subject and role. Every malformed, tampered or expired token maps to
// errInvalidToken.
func parseAccessToken(secret, tokenString string) (username, role string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", errInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", "", errInvalidToken
	}
	return claims.Subject, claims.Role, nil
}

// bearerToken extracts the raw token from the Authorization header. Both
// "Bearer xxx" and "bearer xxx" forms are accepted.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// currentUser resolves the bearer token on the request to a user row. The
// role gate uses the role stored in the database, not the one baked into the
// token, so demotions take effect immediately.
func currentUser(c echo.Context, q connOrTx) (*UserRow, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, errNotAuthenticated
	}
	username, _, err := parseAccessToken(cfg.SecretKey, token)
	if err != nil {
		return nil, err
	}
	user, err := getUserByUsername(c.Request().Context(), q, username)
	if err != nil {
		return nil, fmt.Errorf("error getUserByUsername: %w", err)
	}
	if user == nil {
		return nil, errTokenUserGone
	}
	return user, nil
}

func adminUser(c echo.Context, q connOrTx) (*UserRow, error) {
	user, err := currentUser(c, q)
	if err != nil {
		return nil, err
	}
	if user.Role != roleAdmin {
		return nil, errAdminOnly
	}
	return user, nil
}

func authErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errNotAuthenticated):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return errorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errInvalidToken), errors.Is(err, errTokenUserGone):
		return errorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errAdminOnly):
		return errorResponse(c, http.StatusForbidden, err.Error())
	default:
		c.Logger().Errorf("error resolve current user: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// POST /api/auth/login

func apiLoginHandler(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		c.Logger().Errorf("error Bind request to LoginRequest: %s", err)
		return errorResponse(c, http.StatusBadRequest, "bad request")
	}

	ctx := c.Request().Context()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		c.Logger().Errorf("error db.BeginTxx: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	defer tx.Rollback()

	user, err := authenticateUser(ctx, tx, req.Username, req.Password)
	if err != nil {
		c.Logger().Errorf("error authenticateUser: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if user == nil {
		// unknown user and wrong password look identical to the caller
		return errorResponse(c, http.StatusUnauthorized, "Incorrect username or password")
	}

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE users SET last_login_ip = ? WHERE id = ?",
		nullString(c.RealIP()), user.ID,
	); err != nil {
		c.Logger().Errorf("error Update users by last_login_ip: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	token, err := createAccessToken(cfg.SecretKey, user.Username, user.Role)
	if err != nil {
		c.Logger().Errorf("error createAccessToken: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if err := tx.Commit(); err != nil {
		c.Logger().Errorf("error tx.Commit: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// POST /api/auth/register

func apiRegisterHandler(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		c.Logger().Errorf("error Bind request to RegisterRequest: %s", err)
		return errorResponse(c, http.StatusBadRequest, "bad request")
	}

	ctx := c.Request().Context()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		c.Logger().Errorf("error db.BeginTxx: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	defer tx.Rollback()

	allowed, err := allowRegistration(ctx, tx)
	if err != nil {
		c.Logger().Errorf("error allowRegistration: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if !allowed {
		return errorResponse(c, http.StatusForbidden, "Registration is disabled")
	}
	if req.Password != req.PasswordConfirm {
		return errorResponse(c, http.StatusBadRequest, "Passwords do not match")
	}
	if len(req.Password) < minPasswordLen {
		return errorResponse(c, http.StatusBadRequest, "Password must be at least 6 characters")
	}
	existing, err := getUserByUsername(ctx, tx, req.Username)
	if err != nil {
		c.Logger().Errorf("error getUserByUsername: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if existing != nil {
		return errorResponse(c, http.StatusBadRequest, "Username already taken")
	}

	passwordHash, err := generatePasswordHash(req.Password)
	if err != nil {
		c.Logger().Errorf("error generatePasswordHash: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	ip := nullString(c.RealIP())
	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO users (username, password_hash, role, created_at, created_ip, last_login_ip) VALUES (?, ?, ?, ?, ?, ?)",
		req.Username, passwordHash, roleViewer, time.Now(), ip, ip,
	); err != nil {
		// a racing registration with the same name loses here
		if isDuplicateEntryErr(err) {
			return errorResponse(c, http.StatusBadRequest, "Username already taken")
		}
		c.Logger().Errorf("error Insert users by username=%s: %s", req.Username, err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	token, err := createAccessToken(cfg.SecretKey, req.Username, roleViewer)
	if err != nil {
		c.Logger().Errorf("error createAccessToken: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	if err := tx.Commit(); err != nil {
		c.Logger().Errorf("error tx.Commit: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// GET /api/auth/registration-allowed

func apiRegistrationAllowedHandler(c echo.Context) error {
	allowed, err := allowRegistration(c.Request().Context(), db)
	if err != nil {
		c.Logger().Errorf("error allowRegistration: %s", err)
		return errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, RegistrationAllowedResponse{AllowRegistration: allowed})
}

// GET /api/auth/me

func apiMeHandler(c echo.Context) error {
	user, err := currentUser(c, db)
	if err != nil {
		return authErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, MeResponse{Username: user.Username, Role: user.Role})
}
