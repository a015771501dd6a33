// Package rtponvif contains a depayloader of ONVIF metadata streams.
package rtponvif

import (
	"errors"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

const (
	encodingName = "VND.ONVIF.METADATA"

	// bounds memory when the marker bit never arrives.
	maxDocumentSize = 1024 * 1024
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// Decoder is a RTP/ONVIF metadata depayloader.
type Decoder struct {
	payloadType uint8
	bound       bool

	buf []byte
}

// New allocates a Decoder bound to the first ONVIF metadata media.
// If there's no such media, the decoder is inert.
func New(medias []*description.Media) *Decoder {
	d := &Decoder{}

	for _, m := range medias {
		if m.Type == description.MediaTypeApplication && m.EncodingName() == encodingName {
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

// Decode decodes a XML document from a RTP packet.
func (d *Decoder) Decode(m *message.RTP) (message.Message, error) {
	if len(d.buf)+len(m.Packet.Payload) > maxDocumentSize {
		d.buf = nil
		return nil, errors.New("document is too big")
	}

	d.buf = append(d.buf, m.Packet.Payload...)

	if !m.Packet.Marker {
		return nil, ErrMorePacketsNeeded
	}

	if len(d.buf) == 0 {
		return nil, ErrMorePacketsNeeded
	}

	data := d.buf
	d.buf = nil

	return &message.XML{
		Data:         data,
		PayloadType:  m.Packet.PayloadType,
		Timestamp:    m.Packet.Timestamp,
		NTPTimestamp: m.NTPTimestamp,
	}, nil
}
