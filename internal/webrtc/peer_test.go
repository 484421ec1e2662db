package webrtc

import (
	"testing"

	"livecast/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testICEServers = []domain.ICEServer{
	{URLs: []string{"stun:stun.example.org:3478"}},
	{URLs: []string{"turn:turn.example.org:3478"}, Username: "user", Credential: "secret"},
}

func TestValidateICEServers(t *testing.T) {
	tests := []struct {
		name    string
		servers []domain.ICEServer
		wantErr string
	}{
		{name: "stun and authenticated turn", servers: testICEServers},
		{name: "missing stun", servers: testICEServers[1:], wantErr: "STUN"},
		{name: "missing turn", servers: testICEServers[:1], wantErr: "TURN"},
		{
			name: "turn without credentials",
			servers: []domain.ICEServer{
				{URLs: []string{"stun:stun.example.org:3478"}},
				{URLs: []string{"turns:turn.example.org:5349"}, Username: "user"},
			},
			wantErr: "TURN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateICEServers(tt.servers)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPeer_CreateDisposeLifecycle(t *testing.T) {
	p, err := NewPeer(testICEServers)
	require.NoError(t, err)

	assert.Nil(t, p.Handle())
	assert.ErrorIs(t, p.AddTracks(nil, nil), domain.ErrNoPeerConnection)

	require.NoError(t, p.Create(nil, nil, nil))
	assert.NotNil(t, p.Handle())
	assert.ErrorIs(t, p.Create(nil, nil, nil), domain.ErrPeerExists)

	video, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}, "video", "test")
	require.NoError(t, err)
	audio, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "test")
	require.NoError(t, err)
	require.NoError(t, p.AddTracks(video, audio))

	var disposeErr error
	p.Dispose(func(err error) { disposeErr = err })
	assert.NoError(t, disposeErr)
	assert.Nil(t, p.Handle())

	// Dispose is a no-op once released, and the peer can be created again.
	p.Dispose(func(err error) { t.Errorf("unexpected failure: %v", err) })
	require.NoError(t, p.Create(nil, nil, nil))
	p.Dispose(nil)
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	offerer, err := pion.NewPeerConnection(pion.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	answerer, err := pion.NewPeerConnection(pion.Configuration{})
	require.NoError(t, err)
	defer answerer.Close()

	_, err = offerer.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendonly,
	})
	require.NoError(t, err)

	onFailure := func(err error) { t.Fatalf("unexpected failure: %v", err) }

	var offerSDP string
	NewSDPNegotiator(provider{offerer}).CreateOffer(func(sdp string) { offerSDP = sdp }, onFailure)
	require.NotEmpty(t, offerSDP)

	var offerApplied bool
	NewICECoordinator(provider{answerer}).ApplyRemoteDescription(
		domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offerSDP},
		func() { offerApplied = true }, onFailure)
	require.True(t, offerApplied)

	var answerSDP string
	NewSDPNegotiator(provider{answerer}).CreateAnswer(func(sdp string) { answerSDP = sdp }, onFailure)
	require.NotEmpty(t, answerSDP)

	var answerApplied bool
	NewICECoordinator(provider{offerer}).ApplyRemoteDescription(
		domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: answerSDP},
		func() { answerApplied = true }, onFailure)
	require.True(t, answerApplied)

	assert.Equal(t, pion.SignalingStateStable, offerer.SignalingState())
	assert.Equal(t, pion.SignalingStateStable, answerer.SignalingState())
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		name      string
		candidate pion.ICECandidate
		want      bool
	}{
		{name: "ipv4 loopback host", candidate: pion.ICECandidate{Address: "127.0.0.1", Typ: pion.ICECandidateTypeHost}, want: true},
		{name: "ipv4 loopback range", candidate: pion.ICECandidate{Address: "127.0.1.1", Typ: pion.ICECandidateTypeHost}, want: true},
		{name: "ipv6 loopback host", candidate: pion.ICECandidate{Address: "::1", Typ: pion.ICECandidateTypeHost}, want: true},
		{name: "ipv6 documentation host ending in ::1", candidate: pion.ICECandidate{Address: "2001:db8::1", Typ: pion.ICECandidateTypeHost}},
		{name: "ipv6 link-local host ending in ::1", candidate: pion.ICECandidate{Address: "fe80::1", Typ: pion.ICECandidateTypeHost}},
		{name: "srflx with loopback related address", candidate: pion.ICECandidate{Address: "203.0.113.7", Typ: pion.ICECandidateTypeSrflx, RelatedAddress: "127.0.0.1", RelatedPort: 1}},
		{name: "relay with loopback related address", candidate: pion.ICECandidate{Address: "198.51.100.4", Typ: pion.ICECandidateTypeRelay, RelatedAddress: "::1", RelatedPort: 1}},
		{name: "private ipv4 host", candidate: pion.ICECandidate{Address: "10.0.0.1", Typ: pion.ICECandidateTypeHost}},
		{name: "mdns hostname", candidate: pion.ICECandidate{Address: "0c2b1e8a-1234.local", Typ: pion.ICECandidateTypeHost}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLoopback(&tt.candidate))
		})
	}
}
