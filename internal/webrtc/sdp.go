package webrtc

import (
	"errors"
	"sync/atomic"

	"livecast/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
)

// SDPNegotiator drives local offer/answer creation. Each negotiator is
// single-shot: one offer or one answer.
type SDPNegotiator struct {
	peer domain.HandleProvider
	used atomic.Bool
}

// NewSDPNegotiator returns a negotiator bound to peer.
func NewSDPNegotiator(peer domain.HandleProvider) *SDPNegotiator {
	return &SDPNegotiator{peer: peer}
}

// CreateOffer creates an offer, sets it as the local description and hands
// the description that was actually set to onSuccess.
func (n *SDPNegotiator) CreateOffer(onSuccess func(localSDP string), onFailure func(error)) {
	n.negotiate("create offer", func(h domain.PeerHandle) (pion.SessionDescription, error) {
		return h.CreateOffer(nil)
	}, onSuccess, onFailure)
}

// CreateAnswer is the viewer-side counterpart of CreateOffer. The remote
// offer must already be applied.
func (n *SDPNegotiator) CreateAnswer(onSuccess func(localSDP string), onFailure func(error)) {
	n.negotiate("create answer", func(h domain.PeerHandle) (pion.SessionDescription, error) {
		return h.CreateAnswer(nil)
	}, onSuccess, onFailure)
}

func (n *SDPNegotiator) negotiate(op string, create func(domain.PeerHandle) (pion.SessionDescription, error), onSuccess func(string), onFailure func(error)) {
	if !n.used.CompareAndSwap(false, true) {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, op, domain.ErrAlreadyNegotiated))
		return
	}

	h := n.peer.Handle()
	if h == nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, op, domain.ErrNoPeerConnection))
		return
	}

	desc, err := create(h)
	if err != nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, op, err))
		return
	}

	if err := h.SetLocalDescription(desc); err != nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, "set local description", err))
		return
	}

	// Send what was set, not what was created: the set step may add ICE attributes.
	local := h.LocalDescription()
	if local == nil {
		fail(onFailure, domain.NewSessionError(domain.KindNegotiation, "set local description",
			errors.New("local description missing after set")))
		return
	}

	logger.Infof("local %s set", local.Type)
	if onSuccess != nil {
		onSuccess(local.SDP)
	}
}
