package models

import (
	"fmt"
	"slices"
	"time"
)

type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallVoice || t == CallVideo
}

// CallStatus is the stored state of a call document. CallIncoming is never
// stored: it is the receiver's view of an outgoing call.
type CallStatus string

const (
	CallDialing  CallStatus = "dialing"
	CallOutgoing CallStatus = "outgoing"
	CallIncoming CallStatus = "incoming"
	CallActive   CallStatus = "active"
	CallEnded    CallStatus = "ended"
	CallMissed   CallStatus = "missed"
	CallRejected CallStatus = "rejected"
)

// validCallTransitions defines allowed call status transitions.
var validCallTransitions = map[CallStatus][]CallStatus{
	CallDialing:  {CallOutgoing, CallEnded, CallMissed, CallRejected},
	CallOutgoing: {CallActive, CallEnded, CallMissed, CallRejected},
	CallActive:   {CallEnded},
}

// CanTransition reports whether a call may move from one status to another.
func CanTransition(from, to CallStatus) bool {
	return slices.Contains(validCallTransitions[from], to)
}

// CheckTransition is CanTransition with an ErrInvalidTransition error.
func CheckTransition(from, to CallStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether no further transition is possible.
func (s CallStatus) Terminal() bool {
	return len(validCallTransitions[s]) == 0
}

// SessionDescription is an SDP offer or answer blob.
type SessionDescription struct {
	Type string `bson:"type" json:"type" validate:"required,oneof=offer answer"`
	SDP  string `bson:"sdp" json:"sdp" validate:"required"`
}

type ICECandidate struct {
	Candidate     string  `bson:"candidate" json:"candidate" validate:"required"`
	SDPMid        *string `bson:"sdp_mid,omitempty" json:"sdpMid,omitempty"`
	SDPMLineIndex *int    `bson:"sdp_mline_index,omitempty" json:"sdpMLineIndex,omitempty"`
}

type Call struct {
	ID                 string              `bson:"_id" json:"id"`
	CallerID           string              `bson:"caller_id" json:"caller_id"`
	ReceiverID         string              `bson:"receiver_id" json:"receiver_id"`
	Type               CallType            `bson:"type" json:"type"`
	Status             CallStatus          `bson:"status" json:"status"`
	Offer              *SessionDescription `bson:"offer,omitempty" json:"offer,omitempty"`
	Answer             *SessionDescription `bson:"answer,omitempty" json:"answer,omitempty"`
	CallerCandidates   []ICECandidate      `bson:"caller_candidates,omitempty" json:"caller_candidates,omitempty"`
	ReceiverCandidates []ICECandidate      `bson:"receiver_candidates,omitempty" json:"receiver_candidates,omitempty"`
	CreatedAt          time.Time           `bson:"created_at" json:"created_at"`
	AnsweredAt         *time.Time          `bson:"answered_at,omitempty" json:"answered_at,omitempty"`
	EndedAt            *time.Time          `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	EndedBy            string              `bson:"ended_by,omitempty" json:"ended_by,omitempty"`
	EndReason          string              `bson:"end_reason,omitempty" json:"end_reason,omitempty"`
	Duration           int64               `bson:"duration" json:"duration"` // seconds of active time
}

func (c *Call) IsParticipant(userID string) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// StatusFor returns the status as seen by userID. The receiver sees an
// outgoing call as incoming.
func (c *Call) StatusFor(userID string) CallStatus {
	if c.Status == CallOutgoing && userID == c.ReceiverID {
		return CallIncoming
	}
	return c.Status
}

// ICEServer is handed to clients for peer connection setup.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}
