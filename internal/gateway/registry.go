package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// ChannelRef identifies one channel within one hub.
type ChannelRef struct {
	Hub     uuid.UUID
	Channel uuid.UUID
}

// sessionEdges is the reverse index for one session: which hubs and channels
// it is subscribed to.
type sessionEdges struct {
	hubs     map[uuid.UUID]bool
	channels map[ChannelRef]bool
}

// Registry tracks which sessions are subscribed to which hubs and channels.
// The forward maps (per hub, per channel) and the reverse per-session index
// are kept in lockstep under one lock: every mutation touches both sides, so
// a reader under the lock always observes symmetric edges. Unsubscribing an
// edge that does not exist is a no-op.
type Registry struct {
	mu          sync.RWMutex
	hubSubs     map[uuid.UUID]map[*Session]bool
	channelSubs map[ChannelRef]map[*Session]bool
	sessions    map[*Session]*sessionEdges
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		hubSubs:     make(map[uuid.UUID]map[*Session]bool),
		channelSubs: make(map[ChannelRef]map[*Session]bool),
		sessions:    make(map[*Session]*sessionEdges),
	}
}

func (r *Registry) edgesFor(s *Session) *sessionEdges {
	edges, ok := r.sessions[s]
	if !ok {
		edges = &sessionEdges{
			hubs:     make(map[uuid.UUID]bool),
			channels: make(map[ChannelRef]bool),
		}
		r.sessions[s] = edges
	}
	return edges
}

// SubscribeHub adds the session to hubID's subscriber set.
func (r *Registry) SubscribeHub(s *Session, hubID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.hubSubs[hubID]
	if !ok {
		set = make(map[*Session]bool)
		r.hubSubs[hubID] = set
	}
	set[s] = true
	r.edgesFor(s).hubs[hubID] = true
}

// UnsubscribeHub removes the session from hubID's subscriber set. Idempotent.
func (r *Registry) UnsubscribeHub(s *Session, hubID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeHubEdge(s, hubID)
	r.pruneSession(s)
}

// SubscribeChannel adds the session to the channel's subscriber set.
func (r *Registry) SubscribeChannel(s *Session, ref ChannelRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channelSubs[ref]
	if !ok {
		set = make(map[*Session]bool)
		r.channelSubs[ref] = set
	}
	set[s] = true
	r.edgesFor(s).channels[ref] = true
}

// UnsubscribeChannel removes the session from the channel's subscriber set.
// Idempotent.
func (r *Registry) UnsubscribeChannel(s *Session, ref ChannelRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeChannelEdge(s, ref)
	r.pruneSession(s)
}

// Disconnect removes every edge the session participates in. Afterwards no
// map in the registry references the session.
func (r *Registry) Disconnect(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	edges, ok := r.sessions[s]
	if !ok {
		return
	}
	for hubID := range edges.hubs {
		r.removeHubEdge(s, hubID)
	}
	for ref := range edges.channels {
		r.removeChannelEdge(s, ref)
	}
	delete(r.sessions, s)
}

// DisconnectHub removes every session edge pointing at hubID, in every
// session. Used when a hub is deleted.
func (r *Registry) DisconnectHub(hubID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.hubSubs[hubID] {
		r.removeHubEdge(s, hubID)
		r.pruneSession(s)
	}
	for ref, set := range r.channelSubs {
		if ref.Hub != hubID {
			continue
		}
		for s := range set {
			r.removeChannelEdge(s, ref)
			r.pruneSession(s)
		}
	}
}

// DisconnectChannel removes every session edge pointing at the channel. Used
// when a channel is deleted.
func (r *Registry) DisconnectChannel(ref ChannelRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.channelSubs[ref] {
		r.removeChannelEdge(s, ref)
		r.pruneSession(s)
	}
}

// HubSubscribers returns a snapshot of hubID's subscriber set.
func (r *Registry) HubSubscribers(hubID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.hubSubs[hubID]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// ChannelSubscribers returns a snapshot of the channel's subscriber set.
func (r *Registry) ChannelSubscribers(ref ChannelRef) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.channelSubs[ref]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SubscribedHub reports whether the session holds a hub edge.
func (r *Registry) SubscribedHub(s *Session, hubID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	edges, ok := r.sessions[s]
	return ok && edges.hubs[hubID]
}

// SubscribedChannel reports whether the session holds a channel edge.
func (r *Registry) SubscribedChannel(s *Session, ref ChannelRef) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	edges, ok := r.sessions[s]
	return ok && edges.channels[ref]
}

// References reports whether any map in the registry still mentions the
// session.
func (r *Registry) References(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[s]; ok {
		return true
	}
	for _, set := range r.hubSubs {
		if set[s] {
			return true
		}
	}
	for _, set := range r.channelSubs {
		if set[s] {
			return true
		}
	}
	return false
}

// removeHubEdge deletes both sides of one hub edge. Caller holds the write
// lock.
func (r *Registry) removeHubEdge(s *Session, hubID uuid.UUID) {
	if set, ok := r.hubSubs[hubID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.hubSubs, hubID)
		}
	}
	if edges, ok := r.sessions[s]; ok {
		delete(edges.hubs, hubID)
	}
}

// removeChannelEdge deletes both sides of one channel edge. Caller holds the
// write lock.
func (r *Registry) removeChannelEdge(s *Session, ref ChannelRef) {
	if set, ok := r.channelSubs[ref]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.channelSubs, ref)
		}
	}
	if edges, ok := r.sessions[s]; ok {
		delete(edges.channels, ref)
	}
}

// pruneSession drops the reverse index entry once a session holds no edges.
// Caller holds the write lock.
func (r *Registry) pruneSession(s *Session) {
	if edges, ok := r.sessions[s]; ok && len(edges.hubs) == 0 && len(edges.channels) == 0 {
		delete(r.sessions, s)
	}
}
