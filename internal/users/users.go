// Package users manages logins for the web API.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"minder/internal/db"
	"minder/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"golang.org/x/crypto/bcrypt"
)

// Namespace is the key-value namespace admin users live in.
const Namespace = "admin_users"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password too short")
)

const minPasswordLength = 8

type Store struct {
	kv   db.Store
	cost int
	clk  clock.Clock
}

// NewStore uses bcrypt cost for new hashes; zero selects bcrypt.DefaultCost.
func NewStore(kv db.Store, cost int, clk clock.Clock) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{kv: kv, cost: cost, clk: clk}
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create adds an enabled user.
func (s *Store) Create(ctx context.Context, username, password string, isAdmin bool) (*models.AdminUser, error) {
	username = normalize(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	u := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		IsAdmin:      isAdmin,
		CreatedAt:    s.clk.Now().UTC(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	ok, err := s.kv.SetIfAbsent(ctx, Namespace, username, data)
	if err != nil {
		return nil, fmt.Errorf("store user %s: %w", username, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, username string) (*models.AdminUser, error) {
	username = normalize(username)
	raw, err := s.kv.Get(ctx, Namespace, username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", username, err)
	}
	var u models.AdminUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	return &u, nil
}

func (s *Store) List(ctx context.Context) ([]*models.AdminUser, error) {
	keys, err := s.kv.ListKeys(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*models.AdminUser, 0, len(keys))
	for _, key := range keys {
		u, err := s.Get(ctx, key)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) SetPassword(ctx context.Context, username, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.update(ctx, username, func(u *models.AdminUser) { u.PasswordHash = hash })
}

func (s *Store) SetEnabled(ctx context.Context, username string, enabled bool) error {
	return s.update(ctx, username, func(u *models.AdminUser) { u.Enabled = enabled })
}

// Authenticate checks the password of an enabled user.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.AdminUser, error) {
	u, err := s.Get(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.Enabled {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Store) update(ctx context.Context, username string, fn func(*models.AdminUser)) error {
	u, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	fn(u)
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(ctx, Namespace, u.Username, data); err != nil {
		return fmt.Errorf("store user %s: %w", u.Username, err)
	}
	return nil
}
