package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// BroadcastID identifies a live session. It doubles as the signaling room key.
type BroadcastID string

// NewBroadcastID returns a fresh random broadcast id.
func NewBroadcastID() BroadcastID {
	return BroadcastID(uuid.NewString())
}

// Role selects which side of the protocol a signaling channel speaks.
type Role int

const (
	RoleBroadcaster Role = iota + 1
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	case RoleViewer:
		return "viewer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MessageType names a signaling event on the wire.
type MessageType string

const (
	MessageStart        MessageType = "start"
	MessageStop         MessageType = "stop"
	MessageJoin         MessageType = "join"
	MessageICECandidate MessageType = "iceCandidate"
	MessageAnswer       MessageType = "answer"
	MessageOffer        MessageType = "offer"
	MessageError        MessageType = "error"
)

// SDPType is the kind of a session description.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidate is the wire shape of a single ICE candidate.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// Validate rejects an m-line index that does not fit the SDP uint16 range.
func (c ICECandidate) Validate() error {
	if c.SDPMLineIndex < 0 || c.SDPMLineIndex > math.MaxUint16 {
		return fmt.Errorf("sdpMLineIndex %d out of range", c.SDPMLineIndex)
	}
	return nil
}

// Message is the JSON envelope carried on the signaling connection in both
// directions. Which optional field is set depends on Event.
type Message struct {
	Event       MessageType         `json:"event"`
	BroadcastID BroadcastID         `json:"broadcastId,omitempty"`
	SDP         *SessionDescription `json:"sdp,omitempty"`
	Candidate   *ICECandidate       `json:"candidate,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// StartMessage announces a broadcast together with the broadcaster's offer.
func StartMessage(id BroadcastID, offerSDP string) Message {
	return Message{
		Event:       MessageStart,
		BroadcastID: id,
		SDP:         &SessionDescription{Type: SDPTypeOffer, SDP: offerSDP},
	}
}

// StopMessage ends a broadcast.
func StopMessage(id BroadcastID) Message {
	return Message{Event: MessageStop, BroadcastID: id}
}

// JoinMessage asks the relay for the offer of a running broadcast.
func JoinMessage(id BroadcastID) Message {
	return Message{Event: MessageJoin, BroadcastID: id}
}

// AnswerMessage carries a viewer's answer back to the broadcaster.
func AnswerMessage(id BroadcastID, answerSDP string) Message {
	return Message{
		Event:       MessageAnswer,
		BroadcastID: id,
		SDP:         &SessionDescription{Type: SDPTypeAnswer, SDP: answerSDP},
	}
}

// CandidateMessage relays one local ICE candidate.
func CandidateMessage(id BroadcastID, c ICECandidate) Message {
	return Message{Event: MessageICECandidate, BroadcastID: id, Candidate: &c}
}

// ErrorMessage is pushed by the relay to tear a session down.
func ErrorMessage(id BroadcastID, reason string) Message {
	return Message{Event: MessageError, BroadcastID: id, Error: reason}
}

var errMissingBroadcastID = errors.New("missing broadcast id")

// Validate checks that an outbound message carries the payload its event needs.
func (m Message) Validate() error {
	switch m.Event {
	case MessageStart, MessageAnswer:
		if m.BroadcastID == "" {
			return fmt.Errorf("%s: %w", m.Event, errMissingBroadcastID)
		}
		if m.SDP == nil || m.SDP.SDP == "" {
			return fmt.Errorf("%s: missing session description", m.Event)
		}
	case MessageICECandidate:
		if m.BroadcastID == "" {
			return fmt.Errorf("%s: %w", m.Event, errMissingBroadcastID)
		}
		if m.Candidate == nil {
			return fmt.Errorf("%s: missing candidate", m.Event)
		}
		if err := m.Candidate.Validate(); err != nil {
			return fmt.Errorf("%s: %w", m.Event, err)
		}
	case MessageStop, MessageJoin:
		if m.BroadcastID == "" {
			return fmt.Errorf("%s: %w", m.Event, errMissingBroadcastID)
		}
	case MessageOffer, MessageError:
	default:
		return fmt.Errorf("unknown event %q", m.Event)
	}
	return nil
}
