package webrtc

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// WriteAnnexB reads H.264 RTP packets from track and writes Annex-B NAL
// units to w until the track ends. io.EOF from the track is not an error.
func WriteAnnexB(track RTPReader, w io.Writer) error {
	logger.Infof("reading H264 video track")

	depack := NewH264Depacketizer()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}

		for _, nalu := range depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
			if len(nalu) == 0 {
				continue
			}
			if _, err := w.Write(annexBStartCode); err != nil {
				return fmt.Errorf("write start code: %w", err)
			}
			if _, err := w.Write(nalu); err != nil {
				return fmt.Errorf("write nalu: %w", err)
			}
		}
	}
}
