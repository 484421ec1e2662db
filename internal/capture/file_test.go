package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

var annexB = []byte{
	0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1f,
	0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x3c, 0x80,
	0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00,
}

func TestStartVideoCapture(t *testing.T) {
	s := NewFileSource(writeFile(t, "video.h264", annexB), "")
	s.FrameRate = 200

	track, err := s.StartVideoCapture()
	require.NoError(t, err)
	defer s.StopCapture()

	assert.Equal(t, "video", track.ID())
	assert.Equal(t, "livecast", track.StreamID())
	assert.Equal(t, pion.RTPCodecTypeVideo, track.Kind())
}

func TestStartVideoCapture_Errors(t *testing.T) {
	_, err := NewFileSource("", "").StartVideoCapture()
	assert.ErrorIs(t, err, ErrNoVideoSource)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.h264"), "").StartVideoCapture()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStartAudioCapture(t *testing.T) {
	track, err := NewFileSource("", "").StartAudioCapture()
	require.NoError(t, err)
	assert.Nil(t, track)

	_, err = NewFileSource("", writeFile(t, "audio.ogg", []byte("not an ogg stream"))).StartAudioCapture()
	assert.Error(t, err)
}

func TestStopCapture_WaitsAndRestarts(t *testing.T) {
	s := NewFileSource(writeFile(t, "video.h264", annexB), "")
	s.FrameRate = 200
	s.Loop = true

	_, err := s.StartVideoCapture()
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.StopCapture()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopCapture did not return")
	}

	// Stopping twice and restarting are both fine.
	s.StopCapture()
	_, err = s.StartVideoCapture()
	require.NoError(t, err)
	s.StopCapture()
}
