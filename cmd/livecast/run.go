package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"livecast/native/internal/capture"
	"livecast/native/internal/config"
	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"
	"livecast/native/internal/session"
	"livecast/native/internal/webrtc"
)

type app struct {
	cfg     *config.Config
	servers []domain.ICEServer
	metrics metrics.Collector
}

func (a app) sessionOptions() session.Options {
	timeout := a.cfg.NegotiationTimeout
	if timeout == 0 {
		timeout = -1
	}
	return session.Options{NegotiationTimeout: timeout, Metrics: a.metrics}
}

func (a app) broadcast(ctx context.Context, cancel context.CancelCauseFunc, id domain.BroadcastID) error {
	peer, err := webrtc.NewPeer(a.servers)
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}

	src := capture.NewFileSource(a.cfg.Media.VideoSource, a.cfg.Media.AudioSource)
	src.Loop = true

	b := session.NewBroadcaster(a.signalClient(), peer, src, a.sessionOptions())

	err = b.Start(id,
		func(err error) { cancel(err) },
		func(track domain.MediaTrack) {
			logger.Infof("local preview ready: %s/%s", track.StreamID(), track.ID())
		},
	)
	if err != nil {
		return fmt.Errorf("start broadcast: %w", err)
	}
	fmt.Fprintf(os.Stderr, "broadcasting as %s\n", id)

	<-ctx.Done()
	b.Stop(id)
	return failure(ctx)
}

func (a app) view(ctx context.Context, cancel context.CancelCauseFunc, id domain.BroadcastID) error {
	peer, err := webrtc.NewPeer(a.servers)
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}

	v := session.NewViewer(a.signalClient(), peer, a.sessionOptions())

	err = v.StartViewing(id,
		func(err error) { cancel(err) },
		func(track domain.MediaTrack) {
			reader, ok := track.(webrtc.RTPReader)
			if !ok {
				cancel(fmt.Errorf("track %s cannot be read", track.ID()))
				return
			}
			go func() {
				if err := webrtc.WriteAnnexB(reader, os.Stdout); err != nil {
					cancel(err)
					return
				}
				logger.Infof("remote track ended")
				cancel(nil)
			}()
		},
	)
	if err != nil {
		return fmt.Errorf("start viewing: %w", err)
	}

	<-ctx.Done()
	v.StopViewing()
	return failure(ctx)
}

// failure returns the error that ended ctx, or nil for a clean shutdown.
func failure(ctx context.Context) error {
	err := context.Cause(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
