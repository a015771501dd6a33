package rtph264

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// ErrNonStartingPacketAndNoPrevious is returned when we received a non-starting
// packet of a fragmented NALU and we didn't received anything before.
// It's normal to receive this when decoding a stream that has been already
// running for some time.
var ErrNonStartingPacketAndNoPrevious = errors.New(
	"received a non-starting fragment without any previous starting fragment")

// Decoder is a RTP/H264 depayloader.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type Decoder struct {
	log         logrus.FieldLogger
	payloadType uint8
	bound       bool

	// NALU being reassembled from FU-A packets, length prefix included.
	fragment []byte

	// NALUs of the access unit in progress.
	frame     [][]byte
	frameSize int
	nalType   h264.NALUType
	idr       bool

	idrFound     bool
	preIDRWarned bool
	ignoredTypes map[h264.NALUType]struct{}
}

// New allocates a Decoder bound to the first H264 media.
// If there's no such media, the decoder is inert.
func New(medias []*description.Media, log logrus.FieldLogger) *Decoder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	d := &Decoder{
		log:          log,
		ignoredTypes: make(map[h264.NALUType]struct{}),
	}

	for _, m := range medias {
		if m.Type == description.MediaTypeVideo && m.EncodingName() == encodingName {
			d.payloadType = m.RTPMap.PayloadType
			d.bound = true
			break
		}
	}

	return d
}

// PayloadType returns the payload type the decoder is bound to.
func (d *Decoder) PayloadType() (uint8, bool) {
	return d.payloadType, d.bound
}

func (d *Decoder) resetFrame() {
	d.frame = nil
	d.frameSize = 0
	d.idr = false
}

func (d *Decoder) decodeNALUs(payload []byte) ([][]byte, error) {
	if len(payload) < 1 {
		d.fragment = nil
		return nil, fmt.Errorf("payload is too short")
	}

	typ := h264.NALUType(payload[0] & 0x1F)

	switch typ {
	case h264.NALUTypeFUA:
		if len(payload) < 2 {
			d.fragment = nil
			return nil, fmt.Errorf("invalid FU-A packet (invalid size)")
		}

		start := payload[1] >> 7
		end := (payload[1] >> 6) & 0x01

		if start == 1 {
			nri := payload[0] & 0xE0
			typ := payload[1] & 0x1F

			d.fragment = make([]byte, prefixLength+1, prefixLength+len(payload)-1)
			d.fragment[prefixLength] = nri | typ
			d.fragment = append(d.fragment, payload[2:]...)
		} else {
			if d.fragment == nil {
				return nil, ErrNonStartingPacketAndNoPrevious
			}

			if len(d.fragment)+len(payload)-2 > h264.MaxAccessUnitSize {
				d.fragment = nil
				return nil, fmt.Errorf("NALU size is too big, maximum is %d", h264.MaxAccessUnitSize)
			}

			d.fragment = append(d.fragment, payload[2:]...)
		}

		// some cameras emit small NALUs as a single FU-A packet
		// with both start and end bits set.
		if end != 1 {
			return nil, nil
		}

		nalu := d.fragment
		d.fragment = nil
		binary.BigEndian.PutUint32(nalu, uint32(len(nalu)-prefixLength))
		return [][]byte{nalu}, nil

	case h264.NALUTypeSTAPA:
		d.fragment = nil

		var nalus [][]byte
		buf := payload[1:]

		for len(buf) != 0 {
			if len(buf) < 2 {
				return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
			}

			size := int(binary.BigEndian.Uint16(buf))
			buf = buf[2:]

			// discard padding
			if size == 0 && isAllZero(buf) {
				break
			}

			if size == 0 || size > len(buf) {
				return nil, fmt.Errorf("invalid STAP-A packet (invalid size)")
			}

			nalus = append(nalus, prefixed(buf[:size]))
			buf = buf[size:]
		}

		if nalus == nil {
			return nil, fmt.Errorf("STAP-A packet doesn't contain any NALU")
		}

		return nalus, nil

	case h264.NALUTypeNonIDR, h264.NALUTypeIDR, h264.NALUTypeSEI,
		h264.NALUTypeSPS, h264.NALUTypePPS:
		if d.fragment == nil {
			return [][]byte{prefixed(payload)}, nil
		}

		d.log.WithField("nalType", int(typ)).Debug("discarding single NALU received during a fragmented NALU")
		d.fragment = nil
		return nil, nil
	}

	if _, ok := d.ignoredTypes[typ]; !ok {
		d.ignoredTypes[typ] = struct{}{}
		d.log.WithField("nalType", int(typ)).
			Warnf("unable to depayload NALU of type %v, ignoring it from now on", typ)
	}
	d.fragment = nil

	return nil, nil
}

// Decode decodes an access unit from a RTP packet.
func (d *Decoder) Decode(m *message.RTP) (message.Message, error) {
	nalus, err := d.decodeNALUs(m.Packet.Payload)
	if err != nil {
		d.resetFrame()
		return nil, err
	}

	for _, nalu := range nalus {
		if d.frameSize+len(nalu) > h264.MaxAccessUnitSize {
			d.resetFrame()
			return nil, fmt.Errorf("access unit size (%d) is too big, maximum is %d",
				d.frameSize+len(nalu), h264.MaxAccessUnitSize)
		}

		typ := h264.NALUType(nalu[prefixLength] & 0x1F)
		if len(d.frame) == 0 {
			d.nalType = typ
		}
		if typ == h264.NALUTypeIDR {
			d.idr = true
		}

		d.frame = append(d.frame, nalu)
		d.frameSize += len(nalu)
	}

	if !m.Packet.Marker || len(d.frame) == 0 {
		return nil, ErrMorePacketsNeeded
	}

	data := d.frame[0]
	if len(d.frame) > 1 {
		data = make([]byte, 0, d.frameSize)
		for _, nalu := range d.frame {
			data = append(data, nalu...)
		}
	}

	if d.idr {
		d.idrFound = true
	}

	if !d.idrFound && !d.preIDRWarned {
		d.preIDRWarned = true
		d.log.Warn("access unit precedes the first IDR, the stream started mid-GOP")
	}

	out := &message.H264{
		Data:         data,
		PayloadType:  m.Packet.PayloadType,
		Timestamp:    m.Packet.Timestamp,
		NTPTimestamp: m.NTPTimestamp,
		NALType:      d.nalType,
		IDR:          d.idr,
	}

	d.resetFrame()

	return out, nil
}
