// Package format contains the RTP depayloaders and a factory that builds
// them from a session description.
package format

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/format/rtpbasic"
	"github.com/bluenviron/mediastream/pkg/format/rtph264"
	"github.com/bluenviron/mediastream/pkg/format/rtpmjpeg"
	"github.com/bluenviron/mediastream/pkg/format/rtpmpeg4audio"
	"github.com/bluenviron/mediastream/pkg/format/rtponvif"
	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// Depayloader rebuilds access units from RTP packets of a single payload type.
type Depayloader interface {
	// PayloadType returns the payload type the depayloader is bound to,
	// or false if the depayloader is inert.
	PayloadType() (uint8, bool)

	// Decode returns ErrMorePacketsNeeded when the access unit is incomplete.
	Decode(m *message.RTP) (message.Message, error)
}

type depayloader struct {
	Depayloader
	name        string
	morePackets error
	log         logrus.FieldLogger

	lastSeq  uint16
	seqValid bool
}

func (d *depayloader) Decode(m *message.RTP) (message.Message, error) {
	seq := m.Packet.SequenceNumber
	if d.seqValid && seq != d.lastSeq+1 {
		d.log.WithFields(logrus.Fields{
			"expected": d.lastSeq + 1,
			"received": seq,
		}).Debug("RTP sequence gap")
	}
	d.lastSeq = seq
	d.seqValid = true

	msg, err := d.Depayloader.Decode(m)
	if err != nil {
		if errors.Is(err, d.morePackets) {
			return nil, ErrMorePacketsNeeded
		}
		return nil, liberrors.ErrCodec{Format: d.name, Err: err}
	}

	return msg, nil
}

// NewDepayloaders builds a depayloader for every supported media of a description.
// Medias whose encoding is listed in basic are depayloaded without codec-specific processing.
func NewDepayloaders(desc *description.Session, log logrus.FieldLogger, basic ...string) []Depayloader {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	candidates := []*depayloader{
		{
			Depayloader: rtph264.New(desc.Medias, log.WithField("format", "H264")),
			name:        "H264",
			morePackets: rtph264.ErrMorePacketsNeeded,
		},
		{
			Depayloader: rtpmjpeg.New(desc.Medias, log.WithField("format", "JPEG")),
			name:        "JPEG",
			morePackets: rtpmjpeg.ErrMorePacketsNeeded,
		},
		{
			Depayloader: rtpmpeg4audio.New(desc.Medias, log.WithField("format", "MPEG4-GENERIC")),
			name:        "MPEG4-GENERIC",
		},
		{
			Depayloader: rtponvif.New(desc.Medias),
			name:        "ONVIF",
			morePackets: rtponvif.ErrMorePacketsNeeded,
		},
	}

	for _, enc := range basic {
		candidates = append(candidates, &depayloader{
			Depayloader: rtpbasic.New(desc.Medias, enc),
			name:        enc,
			morePackets: rtpbasic.ErrMorePacketsNeeded,
		})
	}

	var ret []Depayloader
	bound := make(map[uint8]struct{})

	for _, c := range candidates {
		pt, ok := c.PayloadType()
		if !ok {
			continue
		}

		if _, ok := bound[pt]; ok {
			continue
		}
		bound[pt] = struct{}{}

		c.log = log.WithFields(logrus.Fields{"format": c.name, "payloadType": pt})
		ret = append(ret, c)
	}

	return ret
}
