package webrtc

const (
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// H264Depacketizer turns RTP H.264 payloads (RFC 6184) into NAL units.
// FU-A reassembly state is per instance, and a sequence gap inside a
// fragmented unit drops that unit instead of emitting a corrupt one.
type H264Depacketizer struct {
	fuaBuf  []byte
	lastSeq uint16
	started bool
}

// NewH264Depacketizer creates a depacketizer with its own reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize extracts NAL units from the payload of the RTP packet with
// sequence number seq. Single NAL, STAP-A and FU-A packets are supported.
func (d *H264Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	gap := d.started && seq != d.lastSeq+1
	d.lastSeq = seq
	d.started = true

	if gap && d.fuaBuf != nil {
		d.fuaBuf = nil
	}

	if len(payload) < 1 {
		return nil
	}

	switch naluType := payload[0] & 0x1f; {
	case naluType >= 1 && naluType <= 23:
		return [][]byte{payload}
	case naluType == naluTypeSTAPA:
		return d.depacketizeSTAPA(payload)
	case naluType == naluTypeFUA:
		return d.depacketizeFUA(payload)
	default:
		return nil
	}
}

func (d *H264Depacketizer) depacketizeSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // STAP-A header

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H264Depacketizer) depacketizeFUA(payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	indicator := payload[0] & 0xe0 // F + NRI
	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	switch {
	case start:
		d.fuaBuf = append([]byte{indicator | header&0x1f}, payload[2:]...)
	case d.fuaBuf == nil:
		// Continuation without a start, or the chain was dropped.
		return nil
	default:
		d.fuaBuf = append(d.fuaBuf, payload[2:]...)
	}

	if !end {
		return nil
	}
	nalu := d.fuaBuf
	d.fuaBuf = nil
	return [][]byte{nalu}
}
