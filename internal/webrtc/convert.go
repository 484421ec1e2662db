package webrtc

import (
	"livecast/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
)

func toPionDescription(sd domain.SessionDescription) pion.SessionDescription {
	return pion.SessionDescription{
		Type: pion.NewSDPType(string(sd.Type)),
		SDP:  sd.SDP,
	}
}

func toPionCandidate(c domain.ICECandidate) (pion.ICECandidateInit, error) {
	if err := c.Validate(); err != nil {
		return pion.ICECandidateInit{}, err
	}
	sdpMid := c.SDPMid
	sdpMLineIndex := uint16(c.SDPMLineIndex)
	return pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}, nil
}

func fromPionCandidate(init pion.ICECandidateInit) domain.ICECandidate {
	c := domain.ICECandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
