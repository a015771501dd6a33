package fmp4

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/bluenviron/mediastream/pkg/description"
)

const (
	defaultVideoFrameDuration = 3600
	aacFrameDuration          = 1024
)

var h264ProfileNames = map[uint8]string{
	66:  "Baseline Profile",
	77:  "Main Profile",
	100: "High Profile",
}

var aacObjectTypeNames = map[mpeg4audio.ObjectType]string{
	1: "AAC Main",
	2: "AAC LC",
}

var aacSampleRateNames = map[int]string{
	96000: "96 kHz",
	88200: "88.2 kHz",
	64000: "64 kHz",
	48000: "48 kHz",
	44100: "44.1 kHz",
	32000: "32 kHz",
	24000: "24 kHz",
	22050: "22.05 kHz",
	16000: "16 kHz",
	12000: "12 kHz",
	11025: "11.025 kHz",
	8000:  "8 kHz",
	7350:  "7.35 kHz",
}

var channelNames = map[int]string{
	1: "Mono",
	2: "Stereo",
}

// Track is a track of the MP4 stream.
type Track struct {
	ID                   uint32
	PayloadType          uint8
	ClockRate            int
	Codec                string
	Name                 string
	DefaultFrameDuration uint32

	// bits per second, updated about once per second.
	Bitrate float64

	// frames per second, updated about once per second.
	Framerate float64

	isVideo             bool
	started             bool
	lastTimestamp       uint32
	baseMediaDecodeTime uint64
	cumulativeBytes     int
	cumulativeDuration  uint64
	cumulativeFrames    int
}

func (t *Track) duration(ts uint32) uint32 {
	if !t.started {
		t.started = true
		t.lastTimestamp = ts
		return t.DefaultFrameDuration
	}

	d := int32(ts - t.lastTimestamp)
	t.lastTimestamp = ts

	if d < 0 {
		return 0
	}
	return uint32(d)
}

func (t *Track) updateRates(size int, duration uint32) {
	t.cumulativeBytes += size
	t.cumulativeDuration += uint64(duration)
	t.cumulativeFrames++

	if t.cumulativeDuration >= uint64(t.ClockRate) {
		seconds := float64(t.cumulativeDuration) / float64(t.ClockRate)
		t.Bitrate = float64(8*t.cumulativeBytes) / seconds
		t.Framerate = float64(t.cumulativeFrames) / seconds
		t.cumulativeBytes = 0
		t.cumulativeDuration = 0
		t.cumulativeFrames = 0
	}
}

func h264Name(profile uint8, level uint8) string {
	name, ok := h264ProfileNames[profile]
	if !ok {
		name = strconv.FormatUint(uint64(profile), 10)
	}
	return fmt.Sprintf("H.264, %s, level %.1f", name, float64(level)/10)
}

func aacName(conf *mpeg4audio.AudioSpecificConfig) string {
	name, ok := aacObjectTypeNames[conf.Type]
	if !ok {
		name = fmt.Sprintf("AAC (%d)", conf.Type)
	}

	rate, ok := aacSampleRateNames[conf.SampleRate]
	if !ok {
		rate = "custom"
	}

	channels, ok := channelNames[conf.ChannelCount]
	if !ok {
		channels = strconv.Itoa(conf.ChannelCount)
	}

	return name + ", " + rate + ", " + channels
}

// sampleEntryRate returns the integer part of the 16.16 sample entry rate.
// Rates that do not fit are written as zero and carried by the esds config.
func sampleEntryRate(rate int) uint16 {
	if rate <= 0 || rate > math.MaxUint16 {
		return 0
	}
	return uint16(rate)
}

func decodeParameterSets(m *description.Media) ([][]byte, [][]byte, error) {
	v, ok := m.FMTP["sprop-parameter-sets"]
	if !ok {
		return nil, nil, fmt.Errorf("sprop-parameter-sets is missing")
	}

	var spss [][]byte
	var ppss [][]byte

	for _, s := range strings.Split(v, ",") {
		if s == "" {
			continue
		}

		nalu, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", v)
		}

		if len(nalu) == 0 {
			continue
		}

		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			spss = append(spss, nalu)

		case h264.NALUTypePPS:
			ppss = append(ppss, nalu)
		}
	}

	if spss == nil || ppss == nil {
		return nil, nil, fmt.Errorf("sprop-parameter-sets doesn't contain SPS and PPS (%v)", v)
	}

	return spss, ppss, nil
}

func addH264Track(init *mp4.InitSegment, m *description.Media) (*Track, error) {
	spss, ppss, err := decodeParameterSets(m)
	if err != nil {
		return nil, err
	}

	plid := strings.ToLower(m.FMTP["profile-level-id"])
	if len(plid) != 6 {
		if len(spss[0]) < 4 {
			return nil, fmt.Errorf("SPS is too short")
		}
		plid = hex.EncodeToString(spss[0][1:4])
	}

	tmp, err := hex.DecodeString(plid)
	if err != nil {
		return nil, fmt.Errorf("invalid profile-level-id (%v)", plid)
	}

	init.AddEmptyTrack(uint32(m.ClockRate()), "video", "und")
	trak := init.Moov.Traks[len(init.Moov.Traks)-1]

	err = trak.SetAVCDescriptor("avc1", spss, ppss, true)
	if err != nil {
		return nil, err
	}

	frameDuration := uint32(defaultVideoFrameDuration)
	if m.Framerate > 0 {
		frameDuration = uint32(float64(m.ClockRate()) / m.Framerate)
	}

	return &Track{
		ID:                   trak.Tkhd.TrackID,
		PayloadType:          m.PayloadType,
		ClockRate:            m.ClockRate(),
		Codec:                "avc1." + plid,
		Name:                 h264Name(tmp[0], tmp[2]),
		DefaultFrameDuration: frameDuration,
		isVideo:              true,
	}, nil
}

func addAACTrack(init *mp4.InitSegment, m *description.Media) (*Track, error) {
	v, ok := m.FMTP["config"]
	if !ok {
		return nil, fmt.Errorf("config is missing")
	}

	enc, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid config (%v)", v)
	}

	var conf mpeg4audio.AudioSpecificConfig
	err = conf.Unmarshal(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid config (%v): %w", v, err)
	}

	init.AddEmptyTrack(uint32(m.ClockRate()), "audio", "und")
	trak := init.Moov.Traks[len(init.Moov.Traks)-1]

	esds := mp4.CreateEsdsBox(enc)
	mp4a := mp4.CreateAudioSampleEntryBox("mp4a", uint16(conf.ChannelCount), 16, sampleEntryRate(conf.SampleRate), esds)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4a)

	return &Track{
		ID:                   trak.Tkhd.TrackID,
		PayloadType:          m.PayloadType,
		ClockRate:            m.ClockRate(),
		Codec:                fmt.Sprintf("mp4a.40.%d", conf.Type),
		Name:                 aacName(&conf),
		DefaultFrameDuration: aacFrameDuration,
	}, nil
}
