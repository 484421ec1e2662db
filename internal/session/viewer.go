package session

import (
	"livecast/native/internal/domain"
)

// Viewer joins a running broadcast and answers its offer.
//
// Phases: Idle -> Joining -> AwaitingOffer -> Answering -> Connected -> Closed.
type Viewer struct {
	machine
}

// NewViewer wires a viewer session around signal and peer.
func NewViewer(signal domain.Signaler, peer domain.PeerSession, opts Options) *Viewer {
	v := &Viewer{}
	v.setup(domain.RoleViewer, signal, peer, opts)
	return v
}

// StartViewing joins broadcast id. Like Broadcaster.Start it only returns
// an error for an outright rejection; failures after that arrive once via
// onFailure. onTrackReady fires once, when the remote video track arrives.
func (v *Viewer) StartViewing(id domain.BroadcastID, onFailure func(error), onTrackReady func(domain.MediaTrack)) error {
	a, err := v.begin(id, onFailure, PhaseJoining)
	if err != nil {
		return err
	}

	v.signal.RegisterHandlers(domain.RoleViewer, domain.Handlers{
		OnICECandidate: func(c domain.ICECandidate) { v.remoteCandidate(a, c) },
		OnError:        func(err error) { v.fail(a, err) },
		OnAnswer:       func(domain.SessionDescription) {},
		OnOffer:        func(sd domain.SessionDescription) { v.onOffer(a, sd) },
	})

	err = v.peer.Create(
		func(c domain.ICECandidate) { v.onLocalCandidate(a, c) },
		func(track domain.MediaTrack) { v.onTrack(a, track, onTrackReady) },
		func() { v.fail(a, peerClosedError()) },
	)
	if err != nil {
		v.fail(a, domain.NewSessionError(domain.KindNegotiation, "create peer connection", err))
		return nil
	}

	v.signal.Connect(
		func() { v.onConnected(a) },
		func(err error) { v.fail(a, err) },
	)
	return nil
}

// StopViewing releases the peer connection and closes the channel. It is
// idempotent.
func (v *Viewer) StopViewing() {
	v.mu.Lock()
	a := v.active
	v.mu.Unlock()
	if a == nil || !v.detach(a) {
		return
	}

	v.log.WithField("broadcast_id", a.id).Infof("stopping viewing")
	v.teardown()
	v.metrics.SessionStopped(v.role.String())
}

func (v *Viewer) onConnected(a *attempt) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.current(a) {
		return
	}
	v.log.Infof("signaling connected, joining %s", a.id)
	v.send(domain.JoinMessage(a.id))
	v.setPhase(PhaseAwaitingOffer)
	v.armTimeout(a, "await offer")
}

// onLocalCandidate sends right away: the broadcaster's room already exists
// by the time the viewer gathers.
func (v *Viewer) onLocalCandidate(a *attempt, c domain.ICECandidate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.current(a) {
		return
	}
	v.send(domain.CandidateMessage(a.id, c))
	v.metrics.CandidateSent(v.role.String())
}

func (v *Viewer) onOffer(a *attempt, sd domain.SessionDescription) {
	v.mu.Lock()
	if !v.current(a) || v.phase != PhaseAwaitingOffer {
		phase := v.phase
		v.mu.Unlock()
		v.log.Debugf("ignoring offer in phase %s", phase)
		return
	}
	a.stopTimer()
	v.setPhase(PhaseAnswering)
	v.mu.Unlock()

	a.ice.ApplyRemoteDescription(sd, func() {
		if !v.remoteApplied(a, nil) {
			return
		}
		a.sdp.CreateAnswer(func(sdp string) {
			v.mu.Lock()
			defer v.mu.Unlock()
			if !v.current(a) {
				return
			}
			v.send(domain.AnswerMessage(a.id, sdp))
			v.setPhase(PhaseConnected)
		}, func(err error) { v.fail(a, err) })
	}, func(err error) { v.fail(a, err) })
}

func (v *Viewer) onTrack(a *attempt, track domain.MediaTrack, onTrackReady func(domain.MediaTrack)) {
	v.mu.Lock()
	if !v.current(a) || a.trackReady {
		v.mu.Unlock()
		return
	}
	a.trackReady = true
	v.mu.Unlock()

	v.log.Infof("remote video track ready")
	if onTrackReady != nil {
		onTrackReady(track)
	}
}
