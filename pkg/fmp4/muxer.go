// Package fmp4 contains a fragmented MP4 muxer.
package fmp4

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

// Muxer converts access units into a fragmented MP4 stream.
// Every access unit becomes a fragment made of a moof and a mdat box.
type Muxer struct {
	// called once, when the wall clock time of the presentation start is known.
	OnSync func(ntpPresentationTime float64)

	log     logrus.FieldLogger
	tracks  []*Track
	byPT    map[uint8]*Track
	seqNum  uint32
	synced  bool
	ntpTime float64
}

// New allocates a Muxer.
func New(log logrus.FieldLogger) *Muxer {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Muxer{
		log: log,
	}
}

// Init initializes the muxer with a session description and returns the
// initialization segment. Medias that cannot be muxed are skipped.
func (m *Muxer) Init(desc *description.Session) (*message.ISOM, error) {
	init := mp4.CreateEmptyInit()

	m.tracks = nil
	m.byPT = make(map[uint8]*Track)
	m.seqNum = 0
	m.synced = false
	m.ntpTime = 0

	for _, media := range desc.Medias {
		var track *Track
		var err error

		switch {
		case media.Type == description.MediaTypeVideo && media.EncodingName() == "H264":
			track, err = addH264Track(init, media)

		case media.Type == description.MediaTypeAudio && media.EncodingName() == "MPEG4-GENERIC":
			track, err = addAACTrack(init, media)

		default:
			continue
		}

		if err != nil {
			m.log.WithFields(logrus.Fields{
				"payloadType": media.PayloadType,
				"encoding":    media.EncodingName(),
			}).WithError(err).Warn("unable to add track")
			continue
		}

		m.tracks = append(m.tracks, track)
		m.byPT[track.PayloadType] = track
	}

	if len(m.tracks) == 0 {
		return nil, fmt.Errorf("no supported tracks found")
	}

	var bb bytes.Buffer
	err := init.Encode(&bb)
	if err != nil {
		return nil, err
	}

	return &message.ISOM{
		Data:     bb.Bytes(),
		Boxes:    []string{"ftyp", "moov"},
		MIMEType: m.mimeType(),
	}, nil
}

func (m *Muxer) mimeType() string {
	codecs := make([]string, len(m.tracks))
	hasVideo := false

	for i, t := range m.tracks {
		codecs[i] = t.Codec
		if t.isVideo {
			hasVideo = true
		}
	}

	prefix := "audio/mp4"
	if hasVideo {
		prefix = "video/mp4"
	}

	return prefix + "; codecs=\"" + strings.Join(codecs, ", ") + "\""
}

// Write muxes an access unit. It returns nil when the message
// does not belong to a track.
func (m *Muxer) Write(msg message.Message) (*message.ISOM, error) {
	var data []byte
	var pt uint8
	var ts uint32
	var ntp *float64
	sync := true

	switch tmsg := msg.(type) {
	case *message.H264:
		data, pt, ts, ntp = tmsg.Data, tmsg.PayloadType, tmsg.Timestamp, tmsg.NTPTimestamp
		sync = tmsg.IDR

	case *message.Elementary:
		data, pt, ts, ntp = tmsg.Data, tmsg.PayloadType, tmsg.Timestamp, tmsg.NTPTimestamp

	default:
		return nil, nil
	}

	track, ok := m.byPT[pt]
	if !ok {
		return nil, nil
	}

	if !m.synced && ntp != nil {
		m.synced = true
		m.ntpTime = *ntp - 1000*float64(track.baseMediaDecodeTime)/float64(track.ClockRate)

		if m.OnSync != nil {
			m.OnSync(m.ntpTime)
		}
	}

	duration := track.duration(ts)
	track.updateRates(len(data), duration)

	flags := mp4.NonSyncSampleFlags
	if sync {
		flags = mp4.SyncSampleFlags
	}

	frag, err := mp4.CreateMultiTrackFragment(m.seqNum, []uint32{track.ID})
	if err != nil {
		return nil, err
	}
	m.seqNum++

	err = frag.AddFullSampleToTrack(mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Dur:   duration,
			Size:  uint32(len(data)),
		},
		DecodeTime: track.baseMediaDecodeTime,
		Data:       data,
	}, track.ID)
	if err != nil {
		return nil, err
	}

	track.baseMediaDecodeTime += uint64(duration)

	var bb bytes.Buffer
	err = frag.Encode(&bb)
	if err != nil {
		return nil, err
	}

	out := &message.ISOM{
		Data:         bb.Bytes(),
		Boxes:        []string{"moof", "mdat"},
		NTPTimestamp: ntp,
	}

	if track.isVideo && sync && m.synced && ntp != nil {
		v := (*ntp - m.ntpTime) / 1000
		out.CheckpointTime = &v
	}

	return out, nil
}

// Tracks returns the tracks of the stream.
func (m *Muxer) Tracks() []*Track {
	return m.tracks
}

// NTPPresentationTime returns the wall clock time, in Unix milliseconds,
// of the start of the presentation.
func (m *Muxer) NTPPresentationTime() (float64, bool) {
	return m.ntpTime, m.synced
}
