package webrtc

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"livecast/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "webrtc")

// Peer owns at most one Pion PeerConnection at a time. It implements
// domain.PeerSession; Create may be called again after Dispose.
type Peer struct {
	api    *pion.API
	config pion.Configuration

	mu sync.Mutex
	pc *pion.PeerConnection
}

// NewPeer builds the Pion API (codecs and interceptors) and validates that
// the ICE configuration has a STUN server and an authenticated TURN server.
func NewPeer(iceServers []domain.ICEServer) (*Peer, error) {
	if err := ValidateICEServers(iceServers); err != nil {
		return nil, err
	}

	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)

	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)

	pliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pliFactory)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &Peer{
		api: api,
		config: pion.Configuration{
			ICEServers:   servers,
			BundlePolicy: pion.BundlePolicyMaxBundle,
		},
	}, nil
}

// ValidateICEServers requires at least one STUN URL and one TURN URL with
// a username and credential.
func ValidateICEServers(servers []domain.ICEServer) error {
	var stun, turn bool
	for _, s := range servers {
		for _, u := range s.URLs {
			switch {
			case strings.HasPrefix(u, "stun:") || strings.HasPrefix(u, "stuns:"):
				stun = true
			case strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:"):
				if s.Username != "" && s.Credential != "" {
					turn = true
				}
			}
		}
	}
	if !stun {
		return errors.New("ice servers: no STUN server configured")
	}
	if !turn {
		return errors.New("ice servers: no authenticated TURN server configured")
	}
	return nil
}

// Create allocates a new PeerConnection and wires its events. Any callback
// may be nil.
func (p *Peer) Create(onLocalICECandidate func(domain.ICECandidate), onRemoteVideoTrack func(domain.MediaTrack), onClosed func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc != nil {
		return domain.ErrPeerExists
	}

	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			logger.Debugf("ICE gathering complete")
			return
		}

		if isLoopback(c) {
			logger.Debugf("filtering loopback ICE candidate %s", c.Address)
			return
		}

		candidate := fromPionCandidate(c.ToJSON())

		logger.Debugf("local ICE candidate: %s", candidate.Candidate)
		if onLocalICECandidate != nil {
			onLocalICECandidate(candidate)
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		codec := track.Codec()
		logger.Infof("got track: kind=%s codec=%s pt=%d", track.Kind(), codec.MimeType, codec.PayloadType)

		if track.Kind() == pion.RTPCodecTypeVideo {
			if onRemoteVideoTrack != nil {
				onRemoteVideoTrack(track)
			}
			return
		}

		// Audio is accepted but not surfaced.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnSignalingStateChange(func(state pion.SignalingState) {
		logger.Debugf("signaling state: %s", state)
		if state == pion.SignalingStateClosed && onClosed != nil {
			onClosed()
		}
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		logger.Infof("ICE connection state: %s", state)
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		logger.Infof("peer connection state: %s", state)
		if state == pion.PeerConnectionStateFailed && onClosed != nil {
			onClosed()
		}
	})

	p.pc = pc
	return nil
}

// AddTracks attaches the local outbound tracks.
func (p *Peer) AddTracks(video, audio pion.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc == nil {
		return domain.ErrNoPeerConnection
	}

	for _, track := range []pion.TrackLocal{video, audio} {
		if track == nil {
			continue
		}
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}

		// Drain RTCP so interceptors (NACK, PLI) keep working.
		go func() {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(rtcpBuf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

// Dispose closes the PeerConnection. A close error is reported through
// onFailure but the peer is released either way.
func (p *Peer) Dispose(onFailure func(error)) {
	p.mu.Lock()
	pc := p.pc
	p.pc = nil
	p.mu.Unlock()

	if pc == nil {
		return
	}
	if err := pc.Close(); err != nil {
		logger.Warnf("close peer connection: %v", err)
		if onFailure != nil {
			onFailure(domain.NewSessionError(domain.KindRuntimeTeardown, "dispose", err))
		}
		return
	}
	logger.Debugf("peer connection disposed")
}

// Handle returns the live PeerConnection or nil.
func (p *Peer) Handle() domain.PeerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc == nil {
		return nil
	}
	return p.pc
}

// isLoopback reports whether the candidate's own address is a loopback IP.
// Related addresses and mDNS hostnames never match.
func isLoopback(c *pion.ICECandidate) bool {
	ip := net.ParseIP(c.Address)
	return ip != nil && ip.IsLoopback()
}
