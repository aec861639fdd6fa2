package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/session"
	"github.com/voyagen/arematv/internal/store"
)

var (
	// ErrInvalidInput marks a malformed email or password.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailTaken is returned by SignUp for an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by SignIn for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated is returned when no valid session is presented.
	ErrUnauthenticated = errors.New("not signed in")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bytes; bcrypt's input limit
	maxEmailLen    = 254
)

// Auth handles account creation and cookie sessions.
type Auth struct {
	store    store.Store
	sessions session.Store
	cost     int
}

// NewAuth returns an Auth hashing with bcrypt.DefaultCost.
func NewAuth(s store.Store, sessions session.Store) *Auth {
	return &Auth{store: s, sessions: sessions, cost: bcrypt.DefaultCost}
}

// SignUp registers a user and starts a session for it.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*models.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if err := validatePassword(password); err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := a.store.CreateUser(ctx, email, string(hash))
	if errors.Is(err, store.ErrConflict) {
		return nil, "", ErrEmailTaken
	}
	if err != nil {
		return nil, "", err
	}
	token, err := a.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return u, token, nil
}

// SignIn checks credentials and starts a session.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*models.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	u, err := a.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := a.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return u, token, nil
}

// SignOut ends the session identified by token.
func (a *Auth) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.sessions.Delete(ctx, token)
}

// CurrentUser resolves the user behind token.
func (a *Auth) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	id, err := a.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	u, err := a.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return u, err
}

// normalizeEmail accepts a bare address (no display name) and lower-cases it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxEmailLen {
		return "", fmt.Errorf("%w: email is required and must be at most %d characters", ErrInvalidInput, maxEmailLen)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" || addr.Address != raw {
		return "", fmt.Errorf("%w: email is not a valid address", ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(pw) > maxPasswordLen {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLen)
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: password must contain a letter and a digit", ErrInvalidInput)
	}
	return nil
}
