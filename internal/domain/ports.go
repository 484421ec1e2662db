package domain

import (
	pion "github.com/pion/webrtc/v4"
)

// Handlers receives inbound signaling events. Any field may be nil.
type Handlers struct {
	OnICECandidate func(candidate ICECandidate)
	OnError        func(err error)
	OnAnswer       func(answer SessionDescription)
	OnOffer        func(offer SessionDescription)
}

// Signaler owns the connection to the signaling relay.
type Signaler interface {
	// RegisterHandlers must be called before Connect. The role decides which
	// of OnAnswer/OnOffer can ever fire.
	RegisterHandlers(role Role, h Handlers)
	// Connect opens the transport. onConnected fires at most once per
	// successful connect; onFailure fires whenever the channel stops being usable.
	Connect(onConnected func(), onFailure func(err error))
	// Send is fire-and-forget.
	Send(msg Message)
	// Disconnect is idempotent and drops the registered handlers.
	Disconnect()
}

// MediaTrack is an audio or video track handle shared with the rendering
// layer. Both local and remote pion tracks satisfy it.
type MediaTrack interface {
	ID() string
	StreamID() string
	Kind() pion.RTPCodecType
}

// PeerHandle is the subset of *webrtc.PeerConnection used for negotiation.
type PeerHandle interface {
	CreateOffer(options *pion.OfferOptions) (pion.SessionDescription, error)
	CreateAnswer(options *pion.AnswerOptions) (pion.SessionDescription, error)
	SetLocalDescription(desc pion.SessionDescription) error
	SetRemoteDescription(desc pion.SessionDescription) error
	LocalDescription() *pion.SessionDescription
	AddICECandidate(candidate pion.ICECandidateInit) error
}

// HandleProvider exposes the live peer connection, or nil when none exists.
type HandleProvider interface {
	Handle() PeerHandle
}

// PeerSession owns one peer connection at a time.
type PeerSession interface {
	HandleProvider
	Create(onLocalICECandidate func(ICECandidate), onRemoteVideoTrack func(MediaTrack), onClosed func()) error
	AddTracks(video, audio pion.TrackLocal) error
	Dispose(onFailure func(err error))
}

// Capture produces local media tracks.
type Capture interface {
	StartVideoCapture() (pion.TrackLocal, error)
	StartAudioCapture() (pion.TrackLocal, error)
	StopCapture()
}
