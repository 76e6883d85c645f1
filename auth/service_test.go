package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "claire@example.com",
		Password:    "supersafe",
		DisplayName: "Claire Client",
	}

	ctx := context.Background()
	account, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if account.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, account.Email)
	}
	if account.Role != RoleClient {
		t.Fatalf("register: expected default role %s got %s", RoleClient, account.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Account.ID != account.ID {
		t.Fatalf("login: expected account id %q got %q", account.ID, resp.Account.ID)
	}

	actor, err := svc.ActorFromToken(resp.Token)
	if err != nil {
		t.Fatalf("actor from token: %v", err)
	}
	if actor.ID != account.ID {
		t.Fatalf("actor from token: expected %q got %q", account.ID, actor.ID)
	}
	if actor.Role != RoleClient {
		t.Fatalf("actor from token: expected role %s got %s", RoleClient, actor.Role)
	}
	if actor.CanForce() {
		t.Fatal("client actor must not be allowed forced transitions")
	}
}

func TestService_AdminCanForce(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{
		Email:       "ops@example.com",
		Password:    "strongpassword",
		DisplayName: "Olga Operator",
		Role:        RoleAdmin,
	}); err != nil {
		t.Fatalf("register admin: %v", err)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "ops@example.com", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := svc.ActorFromToken(resp.Token)
	if err != nil {
		t.Fatalf("actor from token: %v", err)
	}
	if !actor.CanForce() {
		t.Fatal("admin actor must be allowed forced transitions")
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "claire@example.com",
		Password:    "short",
		DisplayName: "Claire Client",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "",
		Password:    "strongpassword",
		DisplayName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "claire@example.com",
		Password:    "strongpassword",
		DisplayName: "Claire Client",
		Role:        Role("superuser"),
	}); err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "claire@example.com",
		Password:    "strongpassword",
		DisplayName: "Claire Client",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	accountsByEmail map[string]Account
	accountsByID    map[string]Account
	nextID          int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accountsByEmail: make(map[string]Account),
		accountsByID:    make(map[string]Account),
		nextID:          1,
	}
}

func (f *fakeRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	if _, exists := f.accountsByEmail[strings.ToLower(params.Email)]; exists {
		return Account{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("account-%d", f.nextID)
	f.nextID++

	account := Account{
		ID:           id,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.accountsByEmail[strings.ToLower(account.Email)] = account
	f.accountsByID[account.ID] = account

	return account, nil
}

func (f *fakeRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	account, ok := f.accountsByEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeRepository) GetAccountByID(ctx context.Context, id string) (Account, error) {
	account, ok := f.accountsByID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}
