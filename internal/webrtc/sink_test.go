package webrtc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTrack struct {
	packets []*rtp.Packet
	err     error
}

func (s *scriptedTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(s.packets) == 0 {
		return nil, nil, s.err
	}
	pkt := s.packets[0]
	s.packets = s.packets[1:]
	return pkt, nil, nil
}

func packet(seq uint16, payload ...byte) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: payload}
}

func TestWriteAnnexB(t *testing.T) {
	track := &scriptedTrack{
		packets: []*rtp.Packet{
			packet(1, 0x67, 0x01),
			packet(2, 0x7C, 0x85, 0xAA),
			packet(3, 0x7C, 0x45, 0xBB),
		},
		err: io.EOF,
	}

	var out bytes.Buffer
	require.NoError(t, WriteAnnexB(track, &out))

	want := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x01,
		0x00, 0x00, 0x00, 0x01, 0x65, 0xAA, 0xBB,
	}
	assert.Equal(t, want, out.Bytes())
}

func TestWriteAnnexB_ReadError(t *testing.T) {
	boom := errors.New("track closed")
	err := WriteAnnexB(&scriptedTrack{err: boom}, io.Discard)
	assert.ErrorIs(t, err, boom)
}
