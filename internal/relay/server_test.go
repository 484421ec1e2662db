package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"
	"livecast/native/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(NewServer(NewHub(nil)).Router("/ws", metrics.NewPrometheusRelayCollector().Handler()))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, role domain.Role, h domain.Handlers) *signal.Client {
	t.Helper()
	c := signal.NewClient(url, signal.WithPingInterval(0))
	c.RegisterHandlers(role, h)

	connected := make(chan struct{})
	c.Connect(func() { close(connected) }, func(err error) { t.Errorf("channel failed: %v", err) })
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out connecting to relay")
	}
	t.Cleanup(c.Disconnect)
	return c
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay")
		var zero T
		return zero
	}
}

func TestServer_EndToEndSignaling(t *testing.T) {
	_, url := newTestServer(t)

	answers := make(chan domain.SessionDescription, 1)
	bCandidates := make(chan domain.ICECandidate, 4)
	broadcaster := dial(t, url, domain.RoleBroadcaster, domain.Handlers{
		OnAnswer:       func(sd domain.SessionDescription) { answers <- sd },
		OnICECandidate: func(c domain.ICECandidate) { bCandidates <- c },
	})

	offers := make(chan domain.SessionDescription, 1)
	vCandidates := make(chan domain.ICECandidate, 4)
	errs := make(chan error, 1)
	viewer := dial(t, url, domain.RoleViewer, domain.Handlers{
		OnOffer:        func(sd domain.SessionDescription) { offers <- sd },
		OnICECandidate: func(c domain.ICECandidate) { vCandidates <- c },
		OnError:        func(err error) { errs <- err },
	})

	broadcaster.Send(domain.StartMessage("room1", "v=0 offer"))
	broadcaster.Send(domain.CandidateMessage("room1", domain.ICECandidate{Candidate: "early"}))
	// Frames from one connection are handled in order, so a later join
	// sees the room. Give the relay a moment to process the start.
	time.Sleep(50 * time.Millisecond)
	viewer.Send(domain.JoinMessage("room1"))

	assert.Equal(t, "v=0 offer", await(t, offers).SDP)
	assert.Equal(t, "early", await(t, vCandidates).Candidate)

	viewer.Send(domain.AnswerMessage("room1", "v=0 answer"))
	assert.Equal(t, "v=0 answer", await(t, answers).SDP)

	viewer.Send(domain.CandidateMessage("room1", domain.ICECandidate{Candidate: "from-viewer", SDPMLineIndex: 1}))
	got := await(t, bCandidates)
	assert.Equal(t, "from-viewer", got.Candidate)
	assert.Equal(t, 1, got.SDPMLineIndex)

	broadcaster.Send(domain.StopMessage("room1"))
	err := await(t, errs)
	assert.ErrorIs(t, err, domain.ErrRemoteError)
	assert.True(t, domain.IsTransport(err))
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["rooms"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
