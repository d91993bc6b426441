// Package auth implements user authentication: password hashing and
// JWT access tokens.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
	"options-desk/internal/store"
)

// Claims are the JWT claims carried by an access token.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"sub_name"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access tokens and manages user accounts.
type Manager struct {
	store    store.DataStore
	secret   []byte
	tokenTTL time.Duration
}

// NewManager creates an auth manager.
func NewManager(st store.DataStore, secret string, tokenTTL time.Duration) *Manager {
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	return &Manager{
		store:    st,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Signup registers a new user.
func (m *Manager) Signup(ctx context.Context, username, email, password string) (*models.User, error) {
	if username == "" {
		return nil, apperrors.NewValidationError("username", username, "username is required")
	}
	if len(password) < 8 {
		return nil, apperrors.NewValidationError("password", "", "password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:       username,
		Email:          email,
		HashedPassword: hash,
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues an access token.
func (m *Manager) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := m.store.GetUserByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return "", nil, apperrors.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !VerifyPassword(user.HashedPassword, password) {
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token, err := m.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs a new access token for the user.
func (m *Manager) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates an access token.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.ErrNotAuthenticated
	}
	return claims, nil
}

// CurrentUser loads the user identified by the token claims.
func (m *Manager) CurrentUser(ctx context.Context, claims *Claims) (*models.User, error) {
	user, err := m.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotAuthenticated
		}
		return nil, err
	}
	return user, nil
}
