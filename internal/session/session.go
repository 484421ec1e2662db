package session

import (
	"errors"
	"sync"
	"time"

	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"
	"livecast/native/internal/webrtc"

	"github.com/sirupsen/logrus"
)

// DefaultNegotiationTimeout bounds AwaitingAnswer and AwaitingOffer.
const DefaultNegotiationTimeout = 30 * time.Second

var errMissingBroadcastID = errors.New("missing broadcast id")

// Phase is the externally observable state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseAwaitingAnswer
	PhaseJoining
	PhaseAwaitingOffer
	PhaseAnswering
	PhaseConnected
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseAwaitingAnswer:
		return "awaiting_answer"
	case PhaseJoining:
		return "joining"
	case PhaseAwaitingOffer:
		return "awaiting_offer"
	case PhaseAnswering:
		return "answering"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tunes a session. The zero value uses DefaultNegotiationTimeout
// and discards metrics.
type Options struct {
	// NegotiationTimeout bounds the wait for the remote description.
	// Negative disables the timeout.
	NegotiationTimeout time.Duration
	Metrics            metrics.Collector
}

func (o Options) timeout() time.Duration {
	switch {
	case o.NegotiationTimeout < 0:
		return 0
	case o.NegotiationTimeout == 0:
		return DefaultNegotiationTimeout
	default:
		return o.NegotiationTimeout
	}
}

// machine is the state shared by both session roles. Collaborators are
// never called with mu held, except Signaler.Send which must keep
// candidate order.
type machine struct {
	role    domain.Role
	signal  domain.Signaler
	peer    domain.PeerSession
	timeout time.Duration
	metrics metrics.Collector
	log     *logrus.Entry

	// beforeTeardown runs first on every teardown path.
	beforeTeardown func()

	mu     sync.Mutex
	phase  Phase
	active *attempt
}

// attempt is one start..close cycle. Callbacks hold their attempt and do
// nothing once it is no longer the active one.
type attempt struct {
	id        domain.BroadcastID
	onFailure func(error)
	ice       *webrtc.ICECoordinator
	sdp       *webrtc.SDPNegotiator
	timer     *time.Timer

	// remoteSet is true once the remote description is applied; remote
	// candidates are held in arrival order until then.
	remoteSet     bool
	pendingRemote []domain.ICECandidate

	// broadcaster only
	pendingLocal []domain.ICECandidate
	answering    bool

	// viewer only
	trackReady bool
}

func (m *machine) setup(role domain.Role, signal domain.Signaler, peer domain.PeerSession, opts Options) {
	m.role = role
	m.signal = signal
	m.peer = peer
	m.timeout = opts.timeout()
	m.metrics = opts.Metrics
	if m.metrics == nil {
		m.metrics = metrics.Nop{}
	}
	m.log = logrus.WithFields(logrus.Fields{"component": "session", "role": role.String()})
}

// Phase reports the current phase.
func (m *machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *machine) begin(id domain.BroadcastID, onFailure func(error), initial Phase) (*attempt, error) {
	if id == "" {
		return nil, errMissingBroadcastID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, domain.ErrSessionActive
	}

	a := &attempt{
		id:        id,
		onFailure: onFailure,
		ice:       webrtc.NewICECoordinator(m.peer),
		sdp:       webrtc.NewSDPNegotiator(m.peer),
	}
	role := m.role.String()
	a.ice.OnCandidateResult = func(ok bool) { m.metrics.RemoteCandidateApplied(role, ok) }

	m.active = a
	m.metrics.SessionStarted(role)
	m.setPhase(initial)
	m.log.WithField("broadcast_id", id).Infof("session starting")
	return a, nil
}

// setPhase must be called with mu held.
func (m *machine) setPhase(p Phase) {
	if m.phase == p {
		return
	}
	m.log.Debugf("phase %s -> %s", m.phase, p)
	m.phase = p
	m.metrics.SessionPhase(m.role.String(), p.String())
}

// current must be called with mu held.
func (m *machine) current(a *attempt) bool {
	return m.active == a
}

func (m *machine) isCurrent(a *attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(a)
}

// send must be called with mu held.
func (m *machine) send(msg domain.Message) {
	m.signal.Send(msg)
}

// armTimeout must be called with mu held.
func (m *machine) armTimeout(a *attempt, op string) {
	if m.timeout <= 0 {
		return
	}
	a.timer = time.AfterFunc(m.timeout, func() {
		m.fail(a, domain.NewSessionError(domain.KindNegotiation, op, domain.ErrNegotiationTimeout))
	})
}

func (a *attempt) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// detach makes a inactive. It reports false when a was already retired.
func (m *machine) detach(a *attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current(a) {
		return false
	}
	m.active = nil
	a.stopTimer()
	m.setPhase(PhaseClosed)
	return true
}

// fail tears a down and reports err through its onFailure, at most once.
func (m *machine) fail(a *attempt, err error) {
	if !m.detach(a) {
		m.log.Debugf("ignoring failure of retired session: %v", err)
		return
	}

	if domain.KindOf(err) == 0 {
		err = domain.NewSessionError(domain.KindTransport, "signaling", err)
	}
	m.log.WithField("broadcast_id", a.id).Errorf("session failed: %v", err)
	m.metrics.SessionFailed(m.role.String(), domain.KindOf(err).String())

	m.teardown()
	if a.onFailure != nil {
		a.onFailure(err)
	}
}

func (m *machine) teardown() {
	if m.beforeTeardown != nil {
		m.beforeTeardown()
	}
	m.peer.Dispose(func(err error) {
		m.log.Warnf("dispose: %v", err)
	})
	m.signal.Disconnect()
}

// remoteCandidate applies c, or holds it until the remote description is set.
func (m *machine) remoteCandidate(a *attempt, c domain.ICECandidate) {
	m.mu.Lock()
	if !m.current(a) {
		m.mu.Unlock()
		return
	}
	if !a.remoteSet {
		a.pendingRemote = append(a.pendingRemote, c)
		m.mu.Unlock()
		m.log.Debugf("holding remote ICE candidate until remote description is set")
		return
	}
	m.mu.Unlock()

	a.ice.AddRemoteCandidate(c)
}

// remoteApplied marks the remote description as set and applies the held
// candidates. It reports false when a is no longer active.
func (m *machine) remoteApplied(a *attempt, after func()) bool {
	m.mu.Lock()
	if !m.current(a) {
		m.mu.Unlock()
		return false
	}
	a.remoteSet = true
	if after != nil {
		after()
	}
	held := a.pendingRemote
	a.pendingRemote = nil
	m.mu.Unlock()

	for _, c := range held {
		a.ice.AddRemoteCandidate(c)
	}
	return true
}

func peerClosedError() error {
	return domain.NewSessionError(domain.KindTransport, "peer connection", domain.ErrPeerClosed)
}
