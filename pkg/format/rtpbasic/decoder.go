// Package rtpbasic contains a depayloader of payloads that are
// split across packets and terminated by the marker bit.
package rtpbasic

import (
	"errors"
	"strings"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

const (
	maxFrameSize = 8 * 1024 * 1024
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// Decoder is a generic RTP depayloader.
type Decoder struct {
	payloadType uint8
	bound       bool

	buf []byte
}

// New allocates a Decoder bound to the first media with the given encoding name.
// If there's no such media, the decoder is inert.
func New(medias []*description.Media, encodingName string) *Decoder {
	d := &Decoder{}

	for _, m := range medias {
		if m.RTPMap != nil && strings.EqualFold(m.EncodingName(), encodingName) {
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

// Decode decodes a frame from a RTP packet.
func (d *Decoder) Decode(m *message.RTP) (message.Message, error) {
	if len(d.buf)+len(m.Packet.Payload) > maxFrameSize {
		d.buf = nil
		return nil, errors.New("frame is too big")
	}

	d.buf = append(d.buf, m.Packet.Payload...)

	if !m.Packet.Marker || len(d.buf) == 0 {
		return nil, ErrMorePacketsNeeded
	}

	data := d.buf
	d.buf = nil

	return &message.Elementary{
		Data:         data,
		PayloadType:  m.Packet.PayloadType,
		Timestamp:    m.Packet.Timestamp,
		NTPTimestamp: m.NTPTimestamp,
	}, nil
}
