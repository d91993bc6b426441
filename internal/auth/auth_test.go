package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth_test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st, "test-secret", 30*time.Minute)
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword(hash, "correct horse battery") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestSignupValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Signup(ctx, "", "a@example.com", "longenough"); err == nil {
		t.Error("expected error for empty username")
	}
	var verr *apperrors.ValidationError
	if _, err := m.Signup(ctx, "bob", "b@example.com", "short"); !apperrors.As(err, &verr) {
		t.Errorf("expected ValidationError for short password, got %v", err)
	}
}

func TestSignupLoginRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	user, err := m.Signup(ctx, "trader", "trader@example.com", "supersecret")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("user ID not assigned")
	}

	token, loggedIn, err := m.Login(ctx, "trader", "supersecret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("logged in as user %d, want %d", loggedIn.ID, user.ID)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Username != "trader" {
		t.Errorf("claims = %+v", claims)
	}

	current, err := m.CurrentUser(ctx, claims)
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if current.Username != "trader" {
		t.Errorf("current user = %q", current.Username)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Signup(ctx, "trader", "", "supersecret"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if _, _, err := m.Login(ctx, "trader", "wrongpassword"); !apperrors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	// Unknown usernames look identical to wrong passwords.
	if _, _, err := m.Login(ctx, "nobody", "supersecret"); !apperrors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestVerifyTokenRejectsGarbageAndWrongSecret(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	user, err := m.Signup(ctx, "trader", "", "supersecret")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if _, err := m.VerifyToken("not.a.token"); !apperrors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated for garbage, got %v", err)
	}

	other := NewManager(nil, "different-secret", time.Minute)
	token, err := other.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := m.VerifyToken(token); !apperrors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated for wrong secret, got %v", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	user, err := m.Signup(ctx, "trader", "", "supersecret")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	short := NewManager(nil, "test-secret", time.Nanosecond)
	token, err := short.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.VerifyToken(token); !apperrors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated for expired token, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := newTestManager(t)
	ctx := context.Background()

	user, err := m.Signup(ctx, "trader", "", "supersecret")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	token, err := m.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	router := gin.New()
	router.GET("/protected", m.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "username": Username(c)})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"bad token", "Bearer garbage", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
