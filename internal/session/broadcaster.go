package session

import (
	"livecast/native/internal/domain"
)

// Broadcaster publishes local capture to viewers through the relay.
//
// Phases: Idle -> Starting -> AwaitingAnswer -> Connected -> Closed.
type Broadcaster struct {
	machine
	capture domain.Capture
}

// NewBroadcaster wires a broadcaster session. It owns signal, peer and
// capture for its whole lifetime.
func NewBroadcaster(signal domain.Signaler, peer domain.PeerSession, capture domain.Capture, opts Options) *Broadcaster {
	b := &Broadcaster{capture: capture}
	b.setup(domain.RoleBroadcaster, signal, peer, opts)
	b.beforeTeardown = capture.StopCapture
	return b
}

// Start begins broadcasting id. It only returns an error when the call is
// rejected outright, ErrSessionActive while a session is live. Every later
// failure is delivered once through onFailure. onLocalPreviewReady receives
// the local video track before the offer is sent.
func (b *Broadcaster) Start(id domain.BroadcastID, onFailure func(error), onLocalPreviewReady func(domain.MediaTrack)) error {
	a, err := b.begin(id, onFailure, PhaseStarting)
	if err != nil {
		return err
	}

	b.signal.RegisterHandlers(domain.RoleBroadcaster, domain.Handlers{
		OnICECandidate: func(c domain.ICECandidate) { b.remoteCandidate(a, c) },
		OnError:        func(err error) { b.fail(a, err) },
		OnAnswer:       func(sd domain.SessionDescription) { b.onAnswer(a, sd) },
		OnOffer:        func(domain.SessionDescription) {},
	})

	err = b.peer.Create(
		func(c domain.ICECandidate) { b.onLocalCandidate(a, c) },
		nil,
		func() { b.fail(a, peerClosedError()) },
	)
	if err != nil {
		b.fail(a, domain.NewSessionError(domain.KindNegotiation, "create peer connection", err))
		return nil
	}

	video, err := b.capture.StartVideoCapture()
	if err != nil {
		b.fail(a, domain.NewSessionError(domain.KindCapture, "start video capture", err))
		return nil
	}
	audio, err := b.capture.StartAudioCapture()
	if err != nil {
		b.fail(a, domain.NewSessionError(domain.KindCapture, "start audio capture", err))
		return nil
	}
	if !b.isCurrent(a) {
		return nil
	}

	if onLocalPreviewReady != nil && video != nil {
		onLocalPreviewReady(video)
	}

	if err := b.peer.AddTracks(video, audio); err != nil {
		b.fail(a, domain.NewSessionError(domain.KindNegotiation, "add tracks", err))
		return nil
	}

	b.signal.Connect(
		func() { b.onConnected(a) },
		func(err error) { b.fail(a, err) },
	)
	return nil
}

// Stop ends the live session: capture stops, the relay is told, the peer
// connection is released and the channel closed. Without a live session it
// does nothing. An empty id stops the session under its own id.
func (b *Broadcaster) Stop(id domain.BroadcastID) {
	b.mu.Lock()
	a := b.active
	b.mu.Unlock()
	if a == nil || !b.detach(a) {
		b.log.Debugf("stop: no active session")
		return
	}

	if id == "" {
		id = a.id
	}
	b.log.WithField("broadcast_id", id).Infof("stopping broadcast")

	b.capture.StopCapture()
	b.signal.Send(domain.StopMessage(id))
	b.peer.Dispose(func(err error) {
		b.log.Warnf("dispose: %v", err)
	})
	b.signal.Disconnect()
	b.metrics.SessionStopped(b.role.String())
}

func (b *Broadcaster) onConnected(a *attempt) {
	if !b.isCurrent(a) {
		return
	}
	b.log.Infof("signaling connected, creating offer")

	a.sdp.CreateOffer(func(sdp string) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.current(a) {
			return
		}
		b.send(domain.StartMessage(a.id, sdp))
		b.setPhase(PhaseAwaitingAnswer)
		b.armTimeout(a, "await answer")
	}, func(err error) { b.fail(a, err) })
}

// onLocalCandidate holds candidates until the answer is applied so they
// never overtake the start message. Once connected they go out directly.
func (b *Broadcaster) onLocalCandidate(a *attempt, c domain.ICECandidate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.current(a) {
		return
	}
	if b.phase != PhaseConnected {
		a.pendingLocal = append(a.pendingLocal, c)
		b.metrics.CandidateBuffered(b.role.String())
		return
	}
	b.send(domain.CandidateMessage(a.id, c))
	b.metrics.CandidateSent(b.role.String())
}

func (b *Broadcaster) onAnswer(a *attempt, sd domain.SessionDescription) {
	b.mu.Lock()
	if !b.current(a) || b.phase != PhaseAwaitingAnswer || a.answering {
		phase := b.phase
		b.mu.Unlock()
		b.log.Debugf("ignoring answer in phase %s", phase)
		return
	}
	a.answering = true
	a.stopTimer()
	b.mu.Unlock()

	a.ice.ApplyRemoteDescription(sd, func() {
		b.remoteApplied(a, func() {
			for _, c := range a.pendingLocal {
				b.send(domain.CandidateMessage(a.id, c))
				b.metrics.CandidateSent(b.role.String())
			}
			b.log.Infof("answer applied, flushed %d local candidates", len(a.pendingLocal))
			a.pendingLocal = nil
			b.setPhase(PhaseConnected)
		})
	}, func(err error) { b.fail(a, err) })
}
