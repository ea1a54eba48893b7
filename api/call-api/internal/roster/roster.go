package internal_roster

import (
	"sync"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
)

// Patch is a partial participant update. Nil fields are left untouched, so an
// update from one event source (a status broadcast) never clobbers fields set
// by another (a track arrival).
type Patch struct {
	ParticipantID *internal_type.ParticipantID
	DisplayName   *string
	IsMuted       *bool
	IsVideoOff    *bool
	IsSpeaking    *bool
	StreamID      *string
	HasLiveVideo  *bool
}

// Roster is the single source of truth for who is in the call and their
// observable status. It reconciles signaling-layer events (status broadcasts,
// membership) with peer-connection-layer events (track arrival, stream
// state). Intent flags (IsMuted, IsVideoOff) and the renderability flag
// (HasLiveVideo) are kept separate: the broadcast says what the remote user
// chose, the track state says what can actually be rendered right now.
type Roster struct {
	mu      sync.RWMutex
	entries map[internal_type.ConnectionID]*internal_type.Participant
	order   []internal_type.ConnectionID
	local   internal_type.ConnectionID
	hasLoc  bool

	observer func([]internal_type.Participant)
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{entries: make(map[internal_type.ConnectionID]*internal_type.Participant)}
}

// SetObserver registers the callback invoked with a full snapshot after every
// change. Intended for the renderer; runs on the mutating goroutine.
func (r *Roster) SetObserver(fn func([]internal_type.Participant)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// UpsertLocal creates or updates the local participant entry. The entry is
// created at join time and survives until session end; Remove never deletes
// it.
func (r *Roster) UpsertLocal(p internal_type.Participant) {
	p.IsLocal = true
	r.mu.Lock()
	if r.hasLoc && r.local != p.ConnectionID {
		// Reconnect with a fresh connection id: rekey the local entry.
		delete(r.entries, r.local)
		r.replaceOrder(r.local, p.ConnectionID)
	} else if !r.hasLoc {
		r.order = append(r.order, p.ConnectionID)
	}
	r.local = p.ConnectionID
	r.hasLoc = true
	if p.IsMuted {
		p.IsSpeaking = false
	}
	r.entries[p.ConnectionID] = &p
	r.notifyLocked()
	r.mu.Unlock()
}

// UpsertRemote merges a patch into the entry for connID, creating it with the
// given display fields on first sight. Idempotent.
func (r *Roster) UpsertRemote(connID internal_type.ConnectionID, patch Patch) {
	r.mu.Lock()
	e, ok := r.entries[connID]
	if !ok {
		e = &internal_type.Participant{ConnectionID: connID}
		r.entries[connID] = e
		r.order = append(r.order, connID)
	}
	applyPatch(e, patch)
	r.notifyLocked()
	r.mu.Unlock()
}

// UpdateByParticipant merges a patch into every entry carrying the stable
// participant id. Explicit status broadcasts are keyed this way, since the relay
// reports them per user, not per connection.
func (r *Roster) UpdateByParticipant(pid internal_type.ParticipantID, patch Patch) {
	r.mu.Lock()
	changed := false
	for _, e := range r.entries {
		if e.ID == pid {
			applyPatch(e, patch)
			changed = true
		}
	}
	if changed {
		r.notifyLocked()
	}
	r.mu.Unlock()
}

// SetSpeaking updates the speaking flag for the entry holding streamID. A
// muted entry stays not-speaking no matter what the detector measured.
func (r *Roster) SetSpeaking(streamID string, speaking bool) {
	r.mu.Lock()
	for _, e := range r.entries {
		if e.StreamID == streamID {
			e.IsSpeaking = speaking && !e.IsMuted
			r.notifyLocked()
			break
		}
	}
	r.mu.Unlock()
}

// MutedByStream reports the mute flag of the entry holding streamID. Unknown
// streams read as muted so the detector stays silent about them.
func (r *Roster) MutedByStream(streamID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.StreamID == streamID {
			return e.IsMuted
		}
	}
	return true
}

// Remove deletes the entry for connID. Removing the local participant or an
// unknown connection is a no-op, so the call site never has to check first.
func (r *Roster) Remove(connID internal_type.ConnectionID) {
	r.mu.Lock()
	if r.hasLoc && connID == r.local {
		r.mu.Unlock()
		return
	}
	if _, ok := r.entries[connID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, connID)
	r.dropOrder(connID)
	r.notifyLocked()
	r.mu.Unlock()
}

// Get returns a copy of the entry for connID.
func (r *Roster) Get(connID internal_type.ConnectionID) (internal_type.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return internal_type.Participant{}, false
	}
	return *e, true
}

// Local returns a copy of the local entry.
func (r *Roster) Local() (internal_type.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasLoc {
		return internal_type.Participant{}, false
	}
	e, ok := r.entries[r.local]
	if !ok {
		return internal_type.Participant{}, false
	}
	return *e, true
}

// Snapshot returns all entries in join order (local first when it joined
// first, which it always does in practice).
func (r *Roster) Snapshot() []internal_type.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len reports the number of entries.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset drops every remote entry, keeping only the local one. Used after a
// signaling reconnect, when all previously known peers are stale and will be
// rediscovered from a fresh snapshot.
func (r *Roster) Reset() {
	r.mu.Lock()
	for id := range r.entries {
		if r.hasLoc && id == r.local {
			continue
		}
		delete(r.entries, id)
	}
	if r.hasLoc {
		r.order = []internal_type.ConnectionID{r.local}
	} else {
		r.order = nil
	}
	r.notifyLocked()
	r.mu.Unlock()
}

func (r *Roster) snapshotLocked() []internal_type.Participant {
	out := make([]internal_type.Participant, 0, len(r.entries))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Roster) notifyLocked() {
	if r.observer != nil {
		r.observer(r.snapshotLocked())
	}
}

func (r *Roster) dropOrder(id internal_type.ConnectionID) {
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Roster) replaceOrder(prev, next internal_type.ConnectionID) {
	for i, o := range r.order {
		if o == prev {
			r.order[i] = next
			return
		}
	}
	r.order = append(r.order, next)
}

func applyPatch(e *internal_type.Participant, p Patch) {
	if p.ParticipantID != nil {
		e.ID = *p.ParticipantID
	}
	if p.DisplayName != nil {
		e.DisplayName = *p.DisplayName
	}
	if p.IsMuted != nil {
		e.IsMuted = *p.IsMuted
	}
	if p.IsVideoOff != nil {
		e.IsVideoOff = *p.IsVideoOff
	}
	if p.IsSpeaking != nil {
		e.IsSpeaking = *p.IsSpeaking
	}
	if p.StreamID != nil {
		e.StreamID = *p.StreamID
	}
	if p.HasLiveVideo != nil {
		e.HasLiveVideo = *p.HasLiveVideo
	}
	if e.IsMuted {
		e.IsSpeaking = false
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
