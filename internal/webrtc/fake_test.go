package webrtc

import (
	"sync"

	"livecast/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
)

// fakeHandle records the calls made against a peer connection.
type fakeHandle struct {
	mu    sync.Mutex
	calls []string

	createErr    error
	setLocalErr  error
	setRemoteErr error
	addICEErr    error

	created     pion.SessionDescription
	local       *pion.SessionDescription
	remote      *pion.SessionDescription
	candidates  []pion.ICECandidateInit
	localSuffix string
}

func (f *fakeHandle) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeHandle) CreateOffer(*pion.OfferOptions) (pion.SessionDescription, error) {
	f.record("CreateOffer")
	if f.createErr != nil {
		return pion.SessionDescription{}, f.createErr
	}
	f.created = pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "v=0 created-offer"}
	return f.created, nil
}

func (f *fakeHandle) CreateAnswer(*pion.AnswerOptions) (pion.SessionDescription, error) {
	f.record("CreateAnswer")
	if f.createErr != nil {
		return pion.SessionDescription{}, f.createErr
	}
	f.created = pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "v=0 created-answer"}
	return f.created, nil
}

func (f *fakeHandle) SetLocalDescription(desc pion.SessionDescription) error {
	f.record("SetLocalDescription")
	if f.setLocalErr != nil {
		return f.setLocalErr
	}
	// Mimic the runtime adding attributes while applying the description.
	desc.SDP += f.localSuffix
	f.local = &desc
	return nil
}

func (f *fakeHandle) SetRemoteDescription(desc pion.SessionDescription) error {
	f.record("SetRemoteDescription")
	if f.setRemoteErr != nil {
		return f.setRemoteErr
	}
	f.remote = &desc
	return nil
}

func (f *fakeHandle) LocalDescription() *pion.SessionDescription {
	f.record("LocalDescription")
	return f.local
}

func (f *fakeHandle) AddICECandidate(c pion.ICECandidateInit) error {
	f.record("AddICECandidate")
	if f.addICEErr != nil {
		return f.addICEErr
	}
	f.mu.Lock()
	f.candidates = append(f.candidates, c)
	f.mu.Unlock()
	return nil
}

// provider adapts a fixed handle (possibly nil) to domain.HandleProvider.
type provider struct {
	h domain.PeerHandle
}

func (p provider) Handle() domain.PeerHandle {
	return p.h
}
