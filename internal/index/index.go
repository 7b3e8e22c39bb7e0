// Package index maintains one full-text index per (hub, channel) pair over
// that channel's messages. Adds are batched: documents accumulate in a batch
// and are committed to disk once a threshold is reached, at search time, or
// at shutdown. Each index carries a recovery log recording the last committed
// message id; after a crash the gap between the log and the message store is
// replayed on open, so an acknowledged message is always searchable again
// after restart.
package index

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/message"
)

// DefaultCommitThreshold is the pending-document count above which an add
// forces a commit.
const DefaultCommitThreshold = 10

// Sentinel errors for the index package.
var (
	ErrParseQuery = errors.New("could not parse search query")
	ErrClosed     = errors.New("index manager is shut down")
)

// IndexDir returns the directory holding a channel's search index.
func IndexDir(dataDir string, hubID, channelID uuid.UUID) string {
	return filepath.Join(hub.ChannelDir(dataDir, hubID, channelID), "index")
}

// LogFile returns the path of a channel's recovery log.
func LogFile(dataDir string, hubID, channelID uuid.UUID) string {
	return filepath.Join(hub.ChannelDir(dataDir, hubID, channelID), "log")
}

type channelKey struct {
	hub     uuid.UUID
	channel uuid.UUID
}

// channelIndex is the single-writer state for one channel. All mutations go
// through mu; the bleve handle itself is safe for concurrent searches.
type channelIndex struct {
	mu      sync.Mutex
	idx     bleve.Index
	batch   *bleve.Batch
	pending int
	lastID  uuid.UUID
	logPath string
}

// channelEntry is one slot in the manager's table. The index opens at most
// once, outside the table lock, so one channel's disk open and replay never
// stalls traffic on the others.
type channelEntry struct {
	once sync.Once
	ci   *channelIndex
	err  error
}

// close waits for any in-flight open, then commits and closes the index. An
// entry that never opened is poisoned so it cannot open afterwards.
func (e *channelEntry) close() error {
	e.once.Do(func() { e.err = ErrClosed })
	if e.ci == nil {
		return nil
	}
	return e.ci.close()
}

// Manager owns every open channel index and the commit policy shared between
// them.
type Manager struct {
	dataDir   string
	threshold int
	messages  message.Repository

	mu      sync.RWMutex
	indexes map[channelKey]*channelEntry
	closed  bool

	log zerolog.Logger
}

// NewManager creates an index manager rooted at dataDir. Indexes are opened
// lazily on first use; threshold <= 0 selects DefaultCommitThreshold.
func NewManager(dataDir string, threshold int, messages message.Repository, logger zerolog.Logger) *Manager {
	if threshold <= 0 {
		threshold = DefaultCommitThreshold
	}
	return &Manager{
		dataDir:   dataDir,
		threshold: threshold,
		messages:  messages,
		indexes:   make(map[channelKey]*channelEntry),
		log:       logger.With().Str("component", "index").Logger(),
	}
}

// buildMapping defines the per-message document schema: tokenized content,
// numeric timestamp, and the sender as an exact term. The message id is the
// document id, which makes replay an idempotent upsert.
func buildMapping() *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("created_ms", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("sender", bleve.NewKeywordFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultField = "content"
	return m
}

func docID(id uuid.UUID) string {
	return hub.HexID(id)
}

// parseDocID reverses docID. Leading zeros are restored before decoding.
func parseDocID(s string) (uuid.UUID, error) {
	if len(s) > 32 {
		return uuid.Nil, fmt.Errorf("document id %q too long", s)
	}
	padded := strings.Repeat("0", 32-len(s)) + s
	raw, err := hex.DecodeString(padded)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode document id %q: %w", s, err)
	}
	var id uuid.UUID
	copy(id[:], raw)
	return id, nil
}

func docFields(msg *message.Message) map[string]any {
	return map[string]any{
		"content":    msg.Content,
		"created_ms": msg.CreatedMS,
		"sender":     msg.Sender.String(),
	}
}

// Add indexes a message. The document joins the pending batch; once the batch
// grows past the commit threshold it is committed and the recovery log
// advanced.
// The very first add to a channel that has never committed writes the
// recovery log immediately so crash recovery has a starting point.
func (m *Manager) Add(ctx context.Context, hubID, channelID uuid.UUID, msg *message.Message) error {
	ci, err := m.get(ctx, hubID, channelID)
	if err != nil {
		return err
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()

	if err := ci.addLocked(msg); err != nil {
		return err
	}
	if ci.pending > m.threshold {
		if err := ci.commitLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Search commits any pending documents, then runs the query string against
// the channel index and returns up to limit message ids in descending score
// order. Searches observe every Add that has returned.
func (m *Manager) Search(ctx context.Context, hubID, channelID uuid.UUID, queryString string, limit int) ([]uuid.UUID, error) {
	if strings.TrimSpace(queryString) == "" {
		return nil, ErrParseQuery
	}
	q := query.NewQueryStringQuery(queryString)
	if _, err := q.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseQuery, err)
	}

	ci, err := m.get(ctx, hubID, channelID)
	if err != nil {
		return nil, err
	}

	ci.mu.Lock()
	if ci.pending > 0 {
		if err := ci.commitLocked(); err != nil {
			ci.mu.Unlock()
			return nil, err
		}
	}
	ci.mu.Unlock()

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := ci.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search channel index: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := parseDocID(hit.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("doc_id", hit.ID).Msg("Skipping unparseable index hit")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CloseChannel commits and closes one channel index, dropping it from the
// table. Called before a channel's data directory is removed.
func (m *Manager) CloseChannel(hubID, channelID uuid.UUID) error {
	m.mu.Lock()
	key := channelKey{hub: hubID, channel: channelID}
	entry, ok := m.indexes[key]
	delete(m.indexes, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.close()
}

// CloseHub commits and closes every open index belonging to hubID. Called
// before a hub's data directory is removed.
func (m *Manager) CloseHub(hubID uuid.UUID) error {
	m.mu.Lock()
	var victims []*channelEntry
	for key, entry := range m.indexes {
		if key.hub == hubID {
			victims = append(victims, entry)
			delete(m.indexes, key)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, entry := range victims {
		if err := entry.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown commits every open index, updates the recovery logs, and closes
// the handles. The manager rejects further use.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	victims := make([]*channelEntry, 0, len(m.indexes))
	for _, entry := range m.indexes {
		victims = append(victims, entry)
	}
	m.indexes = make(map[channelKey]*channelEntry)
	m.mu.Unlock()

	var firstErr error
	for _, entry := range victims {
		if err := entry.close(); err != nil {
			m.log.Error().Err(err).Msg("Index close failed during shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// get returns the open index for (hubID, channelID), opening and replaying it
// on first use. The table lock only covers the slot lookup; the open itself
// runs under the entry's once.
func (m *Manager) get(ctx context.Context, hubID, channelID uuid.UUID) (*channelIndex, error) {
	key := channelKey{hub: hubID, channel: channelID}

	m.mu.RLock()
	entry, ok := m.indexes[key]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	if !ok {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		entry, ok = m.indexes[key]
		if !ok {
			entry = &channelEntry{}
			m.indexes[key] = entry
		}
		m.mu.Unlock()
	}

	entry.once.Do(func() {
		entry.ci, entry.err = m.openOrCreate(ctx, hubID, channelID)
	})
	if entry.err != nil {
		// Drop the failed slot so the next caller retries the open.
		m.mu.Lock()
		if m.indexes[key] == entry {
			delete(m.indexes, key)
		}
		m.mu.Unlock()
		return nil, entry.err
	}
	return entry.ci, nil
}

// openOrCreate opens the on-disk index for one channel, creating it when
// absent, and replays any messages the store has beyond the recovery log.
func (m *Manager) openOrCreate(ctx context.Context, hubID, channelID uuid.UUID) (*channelIndex, error) {
	dir := IndexDir(m.dataDir, hubID, channelID)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create channel directory: %w", err)
	}

	idx, err := bleve.Open(dir)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(dir, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open channel index: %w", err)
	}

	ci := &channelIndex{
		idx:     idx,
		batch:   idx.NewBatch(),
		logPath: LogFile(m.dataDir, hubID, channelID),
	}

	lastCommitted, logged, err := readRecoveryLog(ci.logPath)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	if !logged {
		// Never committed: nothing to replay.
		return ci, nil
	}

	missed, err := m.messages.After(ctx, hubID, channelID, lastCommitted, 0)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load messages for index replay: %w", err)
	}
	// Replay includes the logged message itself: documents are keyed by
	// message id, so re-adding a committed message is a no-op upsert, and a
	// log written by the first-add bootstrap before any commit would
	// otherwise leave that message out of the index forever.
	if anchor, err := m.messages.Get(ctx, hubID, channelID, lastCommitted); err == nil {
		missed = append([]message.Message{*anchor}, missed...)
	} else if !errors.Is(err, message.ErrNotFound) {
		_ = idx.Close()
		return nil, fmt.Errorf("load anchor message for index replay: %w", err)
	}
	if len(missed) == 0 {
		return ci, nil
	}

	for i := range missed {
		if err := ci.addLocked(&missed[i]); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	if err := ci.commitLocked(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	m.log.Info().
		Stringer("hub_id", hubID).
		Stringer("channel_id", channelID).
		Int("replayed", len(missed)).
		Msg("Replayed messages into channel index")
	return ci, nil
}

// addLocked feeds one message into the pending batch. Caller holds ci.mu, or
// has exclusive ownership during open.
func (ci *channelIndex) addLocked(msg *message.Message) error {
	if err := ci.batch.Index(docID(msg.ID), docFields(msg)); err != nil {
		return fmt.Errorf("index message: %w", err)
	}
	ci.pending++
	ci.lastID = msg.ID
	if err := writeRecoveryLogIfAbsent(ci.logPath, msg.ID); err != nil {
		return err
	}
	return nil
}

// commitLocked applies the pending batch and advances the recovery log.
// The batch apply is retried once before giving up.
func (ci *channelIndex) commitLocked() error {
	if ci.pending == 0 {
		return nil
	}
	if err := ci.idx.Batch(ci.batch); err != nil {
		if err = ci.idx.Batch(ci.batch); err != nil {
			return fmt.Errorf("commit index batch: %w", err)
		}
	}
	ci.batch.Reset()
	ci.pending = 0
	return writeRecoveryLog(ci.logPath, ci.lastID)
}

func (ci *channelIndex) close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if err := ci.commitLocked(); err != nil {
		_ = ci.idx.Close()
		return err
	}
	return ci.idx.Close()
}
