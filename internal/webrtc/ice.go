package webrtc

import (
	"fmt"

	"livecast/native/internal/domain"
)

// ICECoordinator applies remote session state to a peer session.
type ICECoordinator struct {
	peer domain.HandleProvider

	// OnCandidateResult, when set, is told whether each remote candidate applied.
	OnCandidateResult func(ok bool)
}

// NewICECoordinator returns a coordinator bound to peer.
func NewICECoordinator(peer domain.HandleProvider) *ICECoordinator {
	return &ICECoordinator{peer: peer}
}

// ApplyRemoteDescription sets sd as the remote description. onSuccess runs
// only after the set operation has completed.
func (c *ICECoordinator) ApplyRemoteDescription(sd domain.SessionDescription, onSuccess func(), onFailure func(error)) {
	h := c.peer.Handle()
	if h == nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, "set remote description", domain.ErrNoPeerConnection))
		return
	}

	if sd.Type != domain.SDPTypeOffer && sd.Type != domain.SDPTypeAnswer {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, "set remote description",
			fmt.Errorf("unsupported description type %q", sd.Type)))
		return
	}

	if err := h.SetRemoteDescription(toPionDescription(sd)); err != nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, "set remote description", err))
		return
	}

	logger.Infof("remote %s set", sd.Type)
	if onSuccess != nil {
		onSuccess()
	}
}

// AddRemoteCandidate applies one remote candidate. Failures are logged only:
// a few stale or duplicate candidates are expected.
func (c *ICECoordinator) AddRemoteCandidate(candidate domain.ICECandidate) {
	h := c.peer.Handle()
	if h == nil {
		c.report(domain.NewSessionError(domain.KindStaleCandidate, "add ice candidate", domain.ErrNoPeerConnection))
		return
	}

	ic, err := toPionCandidate(candidate)
	if err != nil {
		c.report(domain.NewSessionError(domain.KindStaleCandidate, "add ice candidate", err))
		return
	}
	if err := h.AddICECandidate(ic); err != nil {
		c.report(domain.NewSessionError(domain.KindStaleCandidate, "add ice candidate", err))
		return
	}

	logger.Debugf("added remote ICE candidate")
	if c.OnCandidateResult != nil {
		c.OnCandidateResult(true)
	}
}

func (c *ICECoordinator) report(err error) {
	logger.Warnf("%v", err)
	if c.OnCandidateResult != nil {
		c.OnCandidateResult(false)
	}
}

func fail(onFailure func(error), err error) {
	logger.Errorf("%v", err)
	if onFailure != nil {
		onFailure(err)
	}
}
