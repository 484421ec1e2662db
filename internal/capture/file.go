package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "capture")

const (
	defaultFrameRate = 30
	oggPageDuration  = 20 * time.Millisecond
	opusSampleRate   = 48000
	streamID         = "livecast"
)

// ErrNoVideoSource is returned when no video file is configured.
var ErrNoVideoSource = errors.New("no video source configured")

// FileSource plays an H.264 Annex-B file and an optional Ogg/Opus file as
// the local camera and microphone. It implements domain.Capture.
type FileSource struct {
	VideoPath string
	AudioPath string
	FrameRate int
	Loop      bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileSource returns a source for the given files. audioPath may be empty.
func NewFileSource(videoPath, audioPath string) *FileSource {
	return &FileSource{
		VideoPath: videoPath,
		AudioPath: audioPath,
		FrameRate: defaultFrameRate,
	}
}

func (s *FileSource) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	return s.ctx
}

// StartVideoCapture opens the video file and starts pacing its NAL units
// into a new local track.
func (s *FileSource) StartVideoCapture() (pion.TrackLocal, error) {
	if s.VideoPath == "" {
		return nil, ErrNoVideoSource
	}

	f, err := os.Open(s.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video source: %w", err)
	}
	reader, err := h264reader.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create h264 reader: %w", err)
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}, "video", streamID)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}

	fps := s.FrameRate
	if fps <= 0 {
		fps = defaultFrameRate
	}

	ctx := s.context()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.Close()
		s.pumpVideo(ctx, f, reader, track, time.Second/time.Duration(fps))
	}()

	logger.Infof("video capture started from %s at %d fps", s.VideoPath, fps)
	return track, nil
}

func (s *FileSource) pumpVideo(ctx context.Context, f *os.File, reader *h264reader.H264Reader, track *pion.TrackLocalStaticSample, frame time.Duration) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		nal, err := reader.NextNAL()
		if errors.Is(err, io.EOF) && s.Loop {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				logger.Errorf("rewind video source: %v", err)
				return
			}
			if reader, err = h264reader.NewReader(f); err != nil {
				logger.Errorf("reopen video source: %v", err)
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Errorf("read video source: %v", err)
			} else {
				logger.Infof("video source finished")
			}
			return
		}

		if err := track.WriteSample(media.Sample{Data: nal.Data, Duration: frame}); err != nil {
			logger.Warnf("write video sample: %v", err)
		}
	}
}

// StartAudioCapture opens the Ogg/Opus file. Without an audio path it
// returns a nil track and the broadcast is video only.
func (s *FileSource) StartAudioCapture() (pion.TrackLocal, error) {
	if s.AudioPath == "" {
		return nil, nil
	}

	f, err := os.Open(s.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create ogg reader: %w", err)
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	ctx := s.context()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.Close()
		pumpAudio(ctx, reader, track)
	}()

	logger.Infof("audio capture started from %s", s.AudioPath)
	return track, nil
}

func pumpAudio(ctx context.Context, reader *oggreader.OggReader, track *pion.TrackLocalStaticSample) {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Errorf("read audio source: %v", err)
			} else {
				logger.Infof("audio source finished")
			}
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			logger.Warnf("write audio sample: %v", err)
		}
	}
}

// StopCapture stops both pumps and waits for them to release their files.
// The source can be started again afterwards.
func (s *FileSource) StopCapture() {
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.Infof("capture stopped")
}
