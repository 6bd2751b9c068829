package session

import (
	"encoding/json"
	"time"

	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/doubleratchet"
)

const (
	// maxArchivedStates bounds how many superseded states a record keeps around
	maxArchivedStates = 40
)

// PendingPreKey is kept by the initiator until the first reply arrives; until then every
// outgoing message is wrapped in a PreKeySignalMessage.
type PendingPreKey struct {
	PreKeyID        *uint32               `json:"pre_key_id,omitempty"`
	SignedPreKeyID  uint32                `json:"signed_pre_key_id"`
	KyberPreKeyID   *uint32               `json:"kyber_pre_key_id,omitempty"`
	KyberCiphertext []byte                `json:"kyber_ciphertext,omitempty"`
	BaseKey         key_ed25519.PublicKey `json:"base_key"`
	Timestamp       time.Time             `json:"timestamp"`
}

type SessionState struct {
	Version              int                   `json:"version"`
	LocalIdentity        key_ed25519.PublicKey `json:"local_identity"`
	RemoteIdentity       key_ed25519.PublicKey `json:"remote_identity"`
	LocalRegistrationID  uint32                `json:"local_registration_id"`
	RemoteRegistrationID uint32                `json:"remote_registration_id"`
	// AliceBaseKey is the initiator's ephemeral key this state was built from
	AliceBaseKey key_ed25519.PublicKey `json:"alice_base_key"`
	Ratchet      *doubleratchet.State  `json:"ratchet"`
	Pending      *PendingPreKey        `json:"pending,omitempty"`
}

func (s *SessionState) associatedData(sending bool) []byte {
	ad := make([]byte, 0, len(s.LocalIdentity)+len(s.RemoteIdentity))
	if sending {
		ad = append(ad, s.LocalIdentity...)
		return append(ad, s.RemoteIdentity...)
	}
	ad = append(ad, s.RemoteIdentity...)
	return append(ad, s.LocalIdentity...)
}

// SessionRecord holds the live state for one peer plus a few archived ones.
type SessionRecord struct {
	CurrentState   *SessionState   `json:"current,omitempty"`
	PreviousStates []*SessionState `json:"previous,omitempty"`
}

func NewSessionRecord() *SessionRecord {
	return &SessionRecord{}
}

func DeserializeSessionRecord(data []byte) (*SessionRecord, error) {
	var r SessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *SessionRecord) Serialize() ([]byte, error) {
	return json.Marshal(r)
}

// HasCurrentState reports whether the record holds an active ratchet.
func (r *SessionRecord) HasCurrentState() bool {
	return r != nil && r.CurrentState != nil && r.CurrentState.Ratchet != nil
}

// ArchiveCurrentState moves the current state to the front of the previous states.
func (r *SessionRecord) ArchiveCurrentState() {
	if r.CurrentState == nil {
		return
	}
	r.PreviousStates = append([]*SessionState{r.CurrentState}, r.PreviousStates...)
	if len(r.PreviousStates) > maxArchivedStates {
		r.PreviousStates = r.PreviousStates[:maxArchivedStates]
	}
	r.CurrentState = nil
}

func (r *SessionRecord) promoteState(state *SessionState) {
	if state == r.CurrentState {
		return
	}
	for i, prev := range r.PreviousStates {
		if prev == state {
			r.PreviousStates = append(r.PreviousStates[:i], r.PreviousStates[i+1:]...)
			break
		}
	}
	r.ArchiveCurrentState()
	r.CurrentState = state
}

// stateForBaseKey finds the state created from a given initiator base key.
func (r *SessionRecord) stateForBaseKey(baseKey key_ed25519.PublicKey) *SessionState {
	if r.CurrentState != nil && r.CurrentState.AliceBaseKey.Equals(baseKey) {
		return r.CurrentState
	}
	for _, prev := range r.PreviousStates {
		if prev.AliceBaseKey.Equals(baseKey) {
			return prev
		}
	}
	return nil
}

func (r *SessionRecord) states() []*SessionState {
	out := make([]*SessionState, 0, 1+len(r.PreviousStates))
	if r.HasCurrentState() {
		out = append(out, r.CurrentState)
	}
	return append(out, r.PreviousStates...)
}
