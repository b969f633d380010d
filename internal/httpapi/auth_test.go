package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store, nil)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if store.updates == 0 {
		t.Fatalf("expected rehash to be persisted")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store, nil)

	user, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "  Counter1 ",
		Password: "pass12345",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if user.Username != "counter1" || user.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff user %+v", user)
	}

	users, _ := store.ListUsers(context.Background())
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "counter1" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected staff user to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "counter1", Password: "pass12345"})
	if err != nil {
		t.Fatalf("login with new staff failed: %v", err)
	}
	if resp.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %s", resp.Role)
	}

	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "counter1", Password: "pass12345"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "ab", Password: "short"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseTokenRejectsForeignIssuerAndSecret(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore(), nil)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil || actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("expected admin actor, got %+v err=%v", actor, err)
	}

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil, nil)
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong secret, got %v", err)
	}

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign foreign token: %v", err)
	}
	if _, err := manager.ParseToken(signed); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for foreign issuer, got %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := legacyAdminStore()
	hash, err := hashPassword("staff12345")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.users["dormant"] = domain.UserAccount{Username: "dormant", Password: hash, Role: domain.RoleStaff, Active: false}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store, nil)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "dormant", Password: "staff12345"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for inactive account, got %v", err)
	}
}
