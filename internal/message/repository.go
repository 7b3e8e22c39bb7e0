package message

import (
	"bufio"
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

// Repository is the store adapter for channel messages. Append assigns the
// message ID and timestamp; appends on the same channel are serialised by the
// adapter so CreatedMS never decreases within a channel. After returns the
// messages recorded after afterID in store order; afterID == uuid.Nil (or an
// ID the store no longer has) means "from the beginning", which keeps index
// replay safe when the recovery log points past a truncated journal. A limit
// of 0 means no limit.
type Repository interface {
	Append(ctx context.Context, hubID, channelID, sender uuid.UUID, content string) (*Message, error)
	After(ctx context.Context, hubID, channelID, afterID uuid.UUID, limit int) ([]Message, error)
	Get(ctx context.Context, hubID, channelID, messageID uuid.UUID) (*Message, error)
}

// JournalFile returns the path of a channel's append-only message journal.
func JournalFile(dataDir string, hubID, channelID uuid.UUID) string {
	return filepath.Join(hub.ChannelDir(dataDir, hubID, channelID), "messages")
}

// FSRepository stores each channel's messages as an append-only journal of
// JSON lines. Appends are serialised per channel and synced before returning
// so an acknowledged message survives a crash.
type FSRepository struct {
	dataDir string
	locks   sync.Map // journal path -> *sync.Mutex
	lastMS  sync.Map // journal path -> int64, newest timestamp seen
	log     zerolog.Logger
}

// NewFSRepository creates a journal-backed message repository rooted at
// dataDir.
func NewFSRepository(dataDir string, logger zerolog.Logger) *FSRepository {
	return &FSRepository{
		dataDir: dataDir,
		log:     logger.With().Str("component", "messagestore").Logger(),
	}
}

func (r *FSRepository) lockFor(path string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append validates, timestamps, and durably appends a message to the channel
// journal.
func (r *FSRepository) Append(_ context.Context, hubID, channelID, sender uuid.UUID, content string) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	path := JournalFile(r.dataDir, hubID, channelID)
	mu := r.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create channel directory: %w", err)
	}

	msg := &Message{
		ID:        uuid.New(),
		Sender:    sender,
		CreatedMS: hub.NowMS(),
		Content:   content,
	}
	if last := r.lastTimestamp(path); msg.CreatedMS < last {
		// Keep timestamps monotonic even if the wall clock steps back.
		msg.CreatedMS = last
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open message journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync message journal: %w", err)
	}
	r.lastMS.Store(path, msg.CreatedMS)
	return msg, nil
}

// After returns the messages appended after afterID in journal order.
func (r *FSRepository) After(_ context.Context, hubID, channelID, afterID uuid.UUID, limit int) ([]Message, error) {
	path := JournalFile(r.dataDir, hubID, channelID)
	mu := r.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open message journal: %w", err)
	}
	defer f.Close()

	var (
		out     []Message
		found   = afterID == uuid.Nil
		scanner = bufio.NewScanner(f)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxContentBytes*2)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("decode message journal entry: %w", err)
		}
		if !found {
			if msg.ID == afterID {
				found = true
			}
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan message journal: %w", err)
	}

	if !found {
		// The anchor is gone from the journal. Hand back everything so the
		// caller can re-apply idempotently instead of silently skipping.
		return r.all(path, limit)
	}
	return out, nil
}

// Get returns a single message by ID.
func (r *FSRepository) Get(ctx context.Context, hubID, channelID, messageID uuid.UUID) (*Message, error) {
	msgs, err := r.After(ctx, hubID, channelID, uuid.Nil, 0)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return &msgs[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *FSRepository) all(path string, limit int) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open message journal: %w", err)
	}
	defer f.Close()

	var out []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxContentBytes*2)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("decode message journal entry: %w", err)
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan message journal: %w", err)
	}
	return out, nil
}

// lastTimestamp returns the timestamp of the newest journal entry, scanning
// the journal once per process lifetime. Must be called with the channel lock
// held.
func (r *FSRepository) lastTimestamp(path string) int64 {
	if v, ok := r.lastMS.Load(path); ok {
		return v.(int64)
	}

	var last int64
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxContentBytes*2)
		for scanner.Scan() {
			var msg Message
			if json.Unmarshal(scanner.Bytes(), &msg) == nil {
				last = msg.CreatedMS
			}
		}
		_ = f.Close()
	}
	r.lastMS.Store(path, last)
	return last
}
