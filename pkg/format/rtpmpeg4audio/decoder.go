// Package rtpmpeg4audio contains a RTP/MPEG-4 audio depayloader.
package rtpmpeg4audio

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bluenviron/mediacommon/v2/pkg/bits"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

const (
	encodingName = "MPEG4-GENERIC"
)

// fmtp parameters whose sum gives the size of an AU-header.
var auHeaderParams = []string{
	"sizelength",
	"ctsdeltalength",
	"dtsdeltalength",
	"randomaccessindication",
	"streamstateindication",
	"auxiliarydatasizelength",
}

func fmtpInt(fmtp map[string]string, key string) int {
	v, err := strconv.Atoi(fmtp[key])
	if err != nil {
		return 0
	}
	return v
}

// Decoder is a RTP/MPEG-4 audio depayloader.
// Specification: https://datatracker.ietf.org/doc/html/rfc3640
type Decoder struct {
	log         logrus.FieldLogger
	payloadType uint8
	bound       bool

	// whether packets start with an AU-header section.
	hasAUHeaders bool
}

// New allocates a Decoder bound to the first MPEG4-GENERIC media.
// If there's no such media, the decoder is inert.
func New(medias []*description.Media, log logrus.FieldLogger) *Decoder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	d := &Decoder{log: log}

	for _, m := range medias {
		if m.Type != description.MediaTypeAudio || m.EncodingName() != encodingName {
			continue
		}

		d.payloadType = m.RTPMap.PayloadType
		d.bound = true

		size := max(fmtpInt(m.FMTP, "indexlength"), fmtpInt(m.FMTP, "indexdeltalength"))
		for _, key := range auHeaderParams {
			size += fmtpInt(m.FMTP, key)
		}
		d.hasAUHeaders = size > 0
		break
	}

	return d
}

// PayloadType returns the payload type the decoder is bound to.
func (d *Decoder) PayloadType() (uint8, bool) {
	return d.payloadType, d.bound
}

// Decode strips the AU-header section from a RTP packet.
// Access units are never fragmented across packets.
func (d *Decoder) Decode(m *message.RTP) (message.Message, error) {
	payload := m.Packet.Payload

	if d.hasAUHeaders {
		pos := 0
		headersLen, err := bits.ReadBits(payload, &pos, 16)
		if err != nil {
			return nil, fmt.Errorf("payload is too short")
		}

		n := 2 + int((headersLen+7)/8)
		if len(payload) < n {
			return nil, fmt.Errorf("payload is too short")
		}
		payload = payload[n:]
	}

	return &message.Elementary{
		Data:         payload,
		PayloadType:  m.Packet.PayloadType,
		Timestamp:    m.Packet.Timestamp,
		NTPTimestamp: m.NTPTimestamp,
	}, nil
}
