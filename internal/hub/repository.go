package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository defines the persistence contract for hub snapshots. Load returns
// a point-in-time snapshot; Update serialises read-modify-write cycles per
// hub so concurrent API calls cannot lose each other's changes.
type Repository interface {
	Load(ctx context.Context, id uuid.UUID) (*Hub, error)
	Save(ctx context.Context, h *Hub) error
	Update(ctx context.Context, id uuid.UUID, fn func(*Hub) error) (*Hub, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// HubsDir returns the directory holding hub documents and per-hub data.
func HubsDir(dataDir string) string {
	return filepath.Join(dataDir, "hubs")
}

// HubFile returns the path of a hub's JSON document.
func HubFile(dataDir string, hubID uuid.UUID) string {
	return filepath.Join(HubsDir(dataDir), HexID(hubID)+".json")
}

// HubDir returns the directory holding a hub's per-channel data.
func HubDir(dataDir string, hubID uuid.UUID) string {
	return filepath.Join(HubsDir(dataDir), HexID(hubID))
}

// ChannelDir returns the directory holding one channel's message log, index,
// and recovery log.
func ChannelDir(dataDir string, hubID, channelID uuid.UUID) string {
	return filepath.Join(HubDir(dataDir, hubID), HexID(channelID))
}

// FSRepository persists hubs as JSON documents under <dataDir>/hubs. Writes
// are atomic (temp file + rename) and serialised per hub.
type FSRepository struct {
	dataDir string
	locks   sync.Map // uuid.UUID -> *sync.Mutex
	log     zerolog.Logger
}

// NewFSRepository creates a file-backed hub repository rooted at dataDir.
func NewFSRepository(dataDir string, logger zerolog.Logger) *FSRepository {
	return &FSRepository{
		dataDir: dataDir,
		log:     logger.With().Str("component", "hubstore").Logger(),
	}
}

func (r *FSRepository) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Load reads and decodes a hub document.
func (r *FSRepository) Load(_ context.Context, id uuid.UUID) (*Hub, error) {
	raw, err := os.ReadFile(HubFile(r.dataDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read hub %s: %w", HexID(id), err)
	}
	var h Hub
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decode hub %s: %w", HexID(id), err)
	}
	return &h, nil
}

// Save writes the hub document atomically.
func (r *FSRepository) Save(_ context.Context, h *Hub) error {
	mu := r.lockFor(h.ID)
	mu.Lock()
	defer mu.Unlock()
	return r.write(h)
}

// Update loads the hub, applies fn, and saves the result, all under the
// per-hub lock. If fn returns an error nothing is written.
func (r *FSRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Hub) error) (*Hub, error) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	h, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	if err := r.write(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Delete removes the hub document and the hub's entire data directory,
// including every channel's message log and index.
func (r *FSRepository) Delete(_ context.Context, id uuid.UUID) error {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	file := HubFile(r.dataDir, id)
	if err := os.Remove(file); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete hub %s: %w", HexID(id), err)
	}
	if err := os.RemoveAll(HubDir(r.dataDir, id)); err != nil {
		return fmt.Errorf("delete hub data %s: %w", HexID(id), err)
	}
	r.locks.Delete(id)
	return nil
}

func (r *FSRepository) write(h *Hub) error {
	dir := HubsDir(r.dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create hubs directory: %w", err)
	}

	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode hub %s: %w", HexID(h.ID), err)
	}

	file := HubFile(r.dataDir, h.ID)
	tmp, err := os.CreateTemp(dir, HexID(h.ID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp hub file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write hub %s: %w", HexID(h.ID), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp hub file: %w", err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace hub %s: %w", HexID(h.ID), err)
	}
	return nil
}
