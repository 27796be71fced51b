package transmit

import (
	"slices"
	"sync"
)

// Registry is the many-to-many index between active streams and the
// channels they subscribe to. A single lock guards both directions so that
// readers never observe a half-removed stream.
//
// Streams are compared by identity, so implementations must be comparable
// (typically pointer types).
type Registry struct {
	mu       sync.RWMutex
	streams  map[string]Stream
	leaving  map[string]struct{}
	channels map[string]map[string]struct{} // uid -> channels
	members  map[string]map[string]Stream   // channel -> uid -> stream
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		streams:  make(map[string]Stream),
		leaving:  make(map[string]struct{}),
		channels: make(map[string]map[string]struct{}),
		members:  make(map[string]map[string]Stream),
	}
}

// Push registers a stream. A uid that is already registered is rejected
// with ErrDuplicateStream and the existing stream is left untouched.
func (r *Registry) Push(s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := s.UID()
	if _, ok := r.streams[uid]; ok {
		return ErrDuplicateStream
	}

	r.streams[uid] = s
	r.channels[uid] = make(map[string]struct{})
	return nil
}

// Release marks a registered stream as leaving and reports whether this call
// did so. It returns true at most once per registered stream, so exactly one
// caller proceeds to remove it. A leaving stream keeps its subscriptions
// until Remove but accepts no new ones.
func (r *Registry) Release(s Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := s.UID()
	cur, ok := r.streams[uid]
	if !ok || cur != s {
		return false
	}
	if _, ok := r.leaving[uid]; ok {
		return false
	}

	r.leaving[uid] = struct{}{}
	return true
}

// Remove unregisters the stream and all of its subscriptions and reports
// whether it was registered. Removing an unknown stream, or a stream whose
// uid now belongs to a different instance, is a no-op.
func (r *Registry) Remove(s Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := s.UID()
	cur, ok := r.streams[uid]
	if !ok || cur != s {
		return false
	}

	for ch := range r.channels[uid] {
		r.detach(uid, ch)
	}
	delete(r.channels, uid)
	delete(r.streams, uid)
	delete(r.leaving, uid)
	return true
}

// Get returns the stream registered under uid.
func (r *Registry) Get(uid string) (Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.streams[uid]
	return s, ok
}

// AddSubscription subscribes uid to the channel. It returns false when uid is
// not registered or is leaving; subscribing twice is a no-op that returns true.
func (r *Registry) AddSubscription(uid, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[uid]
	if !ok {
		return false
	}
	if _, leaving := r.leaving[uid]; leaving {
		return false
	}

	r.channels[uid][channel] = struct{}{}

	m, ok := r.members[channel]
	if !ok {
		m = make(map[string]Stream)
		r.members[channel] = m
	}
	m[uid] = s

	return true
}

// RemoveSubscription unsubscribes uid from the channel and reports whether a
// subscription existed.
func (r *Registry) RemoveSubscription(uid, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	chans, ok := r.channels[uid]
	if !ok {
		return false
	}
	if _, ok := chans[channel]; !ok {
		return false
	}

	delete(chans, channel)
	r.detach(uid, channel)
	return true
}

// detach drops uid from the channel's member set. Caller holds the write lock.
func (r *Registry) detach(uid, channel string) {
	m, ok := r.members[channel]
	if !ok {
		return
	}
	delete(m, uid)
	if len(m) == 0 {
		delete(r.members, channel)
	}
}

// SubscribersOf returns a snapshot of the streams subscribed to the channel.
// The slice is owned by the caller.
func (r *Registry) SubscribersOf(channel string) []Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.members[channel]
	out := make([]Stream, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// ChannelsOf returns the sorted channels uid is subscribed to.
// Unknown uids yield an empty slice.
func (r *Registry) ChannelsOf(uid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chans := r.channels[uid]
	out := make([]string, 0, len(chans))
	for ch := range chans {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// UIDs returns the sorted uids of all registered streams.
func (r *Registry) UIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.streams))
	for uid := range r.streams {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Streams returns a snapshot of all registered streams.
func (r *Registry) Streams() []Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// SubscriptionCount returns the total number of (uid, channel) pairs.
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, chans := range r.channels {
		n += len(chans)
	}
	return n
}

// ChannelCount returns the number of channels with at least one subscriber.
func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
