package session

import (
	"errors"
	"fmt"
	"sync"

	"livecast/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
)

// fakeSignaler records outbound messages and lets tests push inbound events.
type fakeSignaler struct {
	mu          sync.Mutex
	role        domain.Role
	handlers    *domain.Handlers
	onConnected func()
	onFailure   func(error)
	sent        []domain.Message
	disconnects int

	// manualConnect defers onConnected until connect() is called.
	manualConnect bool
	connectErr    error
}

func (f *fakeSignaler) RegisterHandlers(role domain.Role, h domain.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.role = role
	f.handlers = &h
}

func (f *fakeSignaler) Connect(onConnected func(), onFailure func(error)) {
	f.mu.Lock()
	f.onConnected = onConnected
	f.onFailure = onFailure
	manual, err := f.manualConnect, f.connectErr
	f.mu.Unlock()

	switch {
	case err != nil:
		onFailure(err)
	case !manual:
		onConnected()
	}
}

func (f *fakeSignaler) Send(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeSignaler) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.handlers = nil
}

func (f *fakeSignaler) connect() {
	f.mu.Lock()
	fn := f.onConnected
	f.mu.Unlock()
	fn()
}

// drop simulates the transport failing.
func (f *fakeSignaler) drop(err error) {
	f.mu.Lock()
	fn := f.onFailure
	f.mu.Unlock()
	fn(domain.NewSessionError(domain.KindTransport, "read", err))
}

func (f *fakeSignaler) current() (domain.Handlers, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		return domain.Handlers{}, false
	}
	return *f.handlers, true
}

func (f *fakeSignaler) deliverAnswer(sdp string) {
	if h, ok := f.current(); ok && h.OnAnswer != nil {
		h.OnAnswer(domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: sdp})
	}
}

func (f *fakeSignaler) deliverOffer(sdp string) {
	if h, ok := f.current(); ok && h.OnOffer != nil {
		h.OnOffer(domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: sdp})
	}
}

func (f *fakeSignaler) deliverCandidate(c domain.ICECandidate) {
	if h, ok := f.current(); ok && h.OnICECandidate != nil {
		h.OnICECandidate(c)
	}
}

func (f *fakeSignaler) deliverError(reason string) {
	if h, ok := f.current(); ok && h.OnError != nil {
		h.OnError(domain.NewSessionError(domain.KindTransport, "relay", fmt.Errorf("%w: %s", domain.ErrRemoteError, reason)))
	}
}

func (f *fakeSignaler) messages() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.sent...)
}

func (f *fakeSignaler) events() []domain.MessageType {
	var out []domain.MessageType
	for _, m := range f.messages() {
		out = append(out, m.Event)
	}
	return out
}

func (f *fakeSignaler) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// fakeHandle stands in for a peer connection.
type fakeHandle struct {
	mu sync.Mutex

	createErr    error
	setRemoteErr error
	addICEErr    error

	local            *pion.SessionDescription
	remotes          []pion.SessionDescription
	remoteCandidates []string
}

func (h *fakeHandle) CreateOffer(*pion.OfferOptions) (pion.SessionDescription, error) {
	if h.createErr != nil {
		return pion.SessionDescription{}, h.createErr
	}
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (h *fakeHandle) CreateAnswer(*pion.AnswerOptions) (pion.SessionDescription, error) {
	if h.createErr != nil {
		return pion.SessionDescription{}, h.createErr
	}
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (h *fakeHandle) SetLocalDescription(desc pion.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	desc.SDP += " +ice"
	h.local = &desc
	return nil
}

func (h *fakeHandle) SetRemoteDescription(desc pion.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setRemoteErr != nil {
		return h.setRemoteErr
	}
	h.remotes = append(h.remotes, desc)
	return nil
}

func (h *fakeHandle) LocalDescription() *pion.SessionDescription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.local
}

func (h *fakeHandle) AddICECandidate(c pion.ICECandidateInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.addICEErr != nil {
		return h.addICEErr
	}
	h.remoteCandidates = append(h.remoteCandidates, c.Candidate)
	return nil
}

func (h *fakeHandle) remoteCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.remotes)
}

func (h *fakeHandle) appliedCandidates() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.remoteCandidates...)
}

// fakePeer is a PeerSession whose events are fired by the test.
type fakePeer struct {
	mu        sync.Mutex
	handle    *fakeHandle
	live      bool
	createErr error
	addErr    error

	onLocal  func(domain.ICECandidate)
	onVideo  func(domain.MediaTrack)
	onClosed func()

	creates  int
	disposes int
	tracks   []pion.TrackLocal
}

func newFakePeer() *fakePeer {
	return &fakePeer{handle: &fakeHandle{}}
}

func (p *fakePeer) Handle() domain.PeerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live {
		return nil
	}
	return p.handle
}

func (p *fakePeer) Create(onLocal func(domain.ICECandidate), onVideo func(domain.MediaTrack), onClosed func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	if p.live {
		return domain.ErrPeerExists
	}
	p.live = true
	p.creates++
	p.onLocal, p.onVideo, p.onClosed = onLocal, onVideo, onClosed
	return nil
}

func (p *fakePeer) AddTracks(video, audio pion.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return p.addErr
	}
	p.tracks = append(p.tracks, video, audio)
	return nil
}

func (p *fakePeer) Dispose(func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposes++
	p.live = false
}

func (p *fakePeer) emitCandidate(c string) {
	p.mu.Lock()
	fn := p.onLocal
	p.mu.Unlock()
	fn(domain.ICECandidate{Candidate: c, SDPMid: "0"})
}

func (p *fakePeer) emitTrack(t domain.MediaTrack) {
	p.mu.Lock()
	fn := p.onVideo
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) close() {
	p.mu.Lock()
	fn := p.onClosed
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePeer) disposeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposes
}

// fakeCapture hands out real local sample tracks.
type fakeCapture struct {
	mu       sync.Mutex
	videoErr error
	audioErr error
	stops    int
}

func (c *fakeCapture) StartVideoCapture() (pion.TrackLocal, error) {
	if c.videoErr != nil {
		return nil, c.videoErr
	}
	return pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}, "video", "livecast")
}

func (c *fakeCapture) StartAudioCapture() (pion.TrackLocal, error) {
	if c.audioErr != nil {
		return nil, c.audioErr
	}
	return pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "livecast")
}

func (c *fakeCapture) StopCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string              { return t.id }
func (t fakeTrack) StreamID() string        { return "remote" }
func (t fakeTrack) Kind() pion.RTPCodecType { return pion.RTPCodecTypeVideo }

// failures counts onFailure calls.
type failures struct {
	mu   sync.Mutex
	errs []error
	ch   chan error
}

func newFailures() *failures {
	return &failures{ch: make(chan error, 8)}
}

func (f *failures) record(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
	f.ch <- err
}

func (f *failures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func (f *failures) first() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[0]
}

var errBoom = errors.New("boom")

// noTimeout keeps negotiation timers out of tests that do not exercise them.
var noTimeout = Options{NegotiationTimeout: -1}
