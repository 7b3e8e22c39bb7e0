package user

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/hub"
)

// Repository defines the persistence contract for user records.
type Repository interface {
	Load(ctx context.Context, id uuid.UUID) (*User, error)
	Save(ctx context.Context, u *User) error
	Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error)
}

// UsersDir returns the directory holding user documents.
func UsersDir(dataDir string) string {
	return filepath.Join(dataDir, "users")
}

// UserFile returns the path of a user's JSON document.
func UserFile(dataDir string, id uuid.UUID) string {
	return filepath.Join(UsersDir(dataDir), hub.HexID(id)+".json")
}

// FSRepository persists users as JSON documents under <dataDir>/users, one
// file per user, written atomically.
type FSRepository struct {
	dataDir string
	locks   sync.Map // uuid.UUID -> *sync.Mutex
	log     zerolog.Logger
}

// NewFSRepository creates a file-backed user repository rooted at dataDir.
func NewFSRepository(dataDir string, logger zerolog.Logger) *FSRepository {
	return &FSRepository{
		dataDir: dataDir,
		log:     logger.With().Str("component", "userstore").Logger(),
	}
}

func (r *FSRepository) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Load reads and decodes a user document.
func (r *FSRepository) Load(_ context.Context, id uuid.UUID) (*User, error) {
	raw, err := os.ReadFile(UserFile(r.dataDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read user %s: %w", hub.HexID(id), err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", hub.HexID(id), err)
	}
	return &u, nil
}

// Save writes the user document atomically.
func (r *FSRepository) Save(_ context.Context, u *User) error {
	mu := r.lockFor(u.ID)
	mu.Lock()
	defer mu.Unlock()
	return r.write(u)
}

// Update loads the user, applies fn, and saves the result under the per-user
// lock.
func (r *FSRepository) Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	u, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	if err := r.write(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *FSRepository) write(u *User) error {
	dir := UsersDir(r.dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create users directory: %w", err)
	}

	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", hub.HexID(u.ID), err)
	}

	tmp, err := os.CreateTemp(dir, hub.HexID(u.ID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp user file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write user %s: %w", hub.HexID(u.ID), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp user file: %w", err)
	}
	if err := os.Rename(tmp.Name(), UserFile(r.dataDir, u.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace user %s: %w", hub.HexID(u.ID), err)
	}
	return nil
}
