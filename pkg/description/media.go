// Package description contains objects to describe streams.
package description

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

func getAttribute(attributes []psdp.Attribute, key string) (string, bool) {
	for _, attr := range attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

func decodeFMTP(enc string) map[string]string {
	if enc == "" {
		return nil
	}

	ret := make(map[string]string)

	for _, kv := range strings.Split(enc, ";") {
		k, v, _ := strings.Cut(kv, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		ret[k] = strings.TrimSpace(v)
	}

	return ret
}

func decodeMatrix(enc string) ([][]float64, error) {
	var ret [][]float64

	for _, row := range strings.Split(enc, ";") {
		var vals []float64
		for _, v := range strings.Split(row, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid matrix (%v)", enc)
			}
			vals = append(vals, f)
		}
		ret = append(ret, vals)
	}

	return ret, nil
}

// MediaType is the type of a media stream.
type MediaType string

// media types.
const (
	MediaTypeVideo       MediaType = "video"
	MediaTypeAudio       MediaType = "audio"
	MediaTypeApplication MediaType = "application"
)

// RTPMap is the content of a rtpmap attribute.
type RTPMap struct {
	PayloadType uint8

	// encoding name, always uppercase.
	EncodingName string

	ClockRate int

	// encoding parameters, usually the channel count of audio streams.
	EncodingParameters string
}

// Framesize is the content of a framesize attribute.
type Framesize struct {
	Width  int
	Height int
}

// Media is a media stream.
type Media struct {
	// Media type.
	Type MediaType

	// Payload type of the first format.
	PayloadType uint8

	// Control attribute.
	Control string

	// rtpmap attribute, nil when missing and not implied by a static payload type.
	RTPMap *RTPMap

	// fmtp attribute, with lowercase keys.
	FMTP map[string]string

	// framesize attribute.
	Framesize *Framesize

	// framerate attribute, zero when missing.
	Framerate float64

	// transform matrix.
	Transform [][]float64

	// sensor transform matrix.
	SensorTransform [][]float64

	// range attribute.
	Range string
}

// Unmarshal decodes the media from the SDP format.
func (m *Media) Unmarshal(md *psdp.MediaDescription) error {
	m.Type = MediaType(md.MediaName.Media)

	if len(md.MediaName.Formats) == 0 {
		return fmt.Errorf("no formats found")
	}

	tmp, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid payload type (%v)", md.MediaName.Formats[0])
	}
	m.PayloadType = uint8(tmp)

	m.Control, _ = getAttribute(md.Attributes, "control")
	m.Range, _ = getAttribute(md.Attributes, "range")

	if v, ok := getAttribute(md.Attributes, "rtpmap"); ok {
		m.RTPMap, err = unmarshalRTPMap(v)
		if err != nil {
			return err
		}
	} else if m.PayloadType == 26 {
		m.RTPMap = &RTPMap{
			PayloadType:  26,
			EncodingName: "JPEG",
			ClockRate:    90000,
		}
	}

	if v, ok := getAttribute(md.Attributes, "fmtp"); ok {
		_, params, _ := strings.Cut(strings.TrimSpace(v), " ")
		m.FMTP = decodeFMTP(params)
	}

	// optional attributes with invalid values are ignored
	if v, ok := getAttribute(md.Attributes, "framesize"); ok {
		if fs, err := unmarshalFramesize(v); err == nil {
			m.Framesize = fs
		}
	}

	if v, ok := getAttribute(md.Attributes, "framerate"); ok {
		if fr, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			m.Framerate = fr
		}
	}

	if v, ok := getAttribute(md.Attributes, "transform"); ok {
		if mat, err := decodeMatrix(v); err == nil {
			m.Transform = mat
		}
	}

	if v, ok := getAttribute(md.Attributes, "x-sensor-transform"); ok {
		if mat, err := decodeMatrix(v); err == nil {
			m.SensorTransform = mat
		}
	}

	return nil
}

// EncodingName returns the encoding name of the media, or an empty string.
func (m Media) EncodingName() string {
	if m.RTPMap == nil {
		return ""
	}
	return m.RTPMap.EncodingName
}

// ClockRate returns the clock rate of the media, or zero.
func (m Media) ClockRate() int {
	if m.RTPMap == nil {
		return 0
	}
	return m.RTPMap.ClockRate
}

func unmarshalRTPMap(v string) (*RTPMap, error) {
	pt, enc, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok {
		return nil, fmt.Errorf("invalid rtpmap (%v)", v)
	}

	tmp, err := strconv.ParseUint(pt, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid rtpmap (%v)", v)
	}

	parts := strings.Split(strings.ToUpper(strings.TrimSpace(enc)), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid rtpmap (%v)", v)
	}

	clockRate, err := strconv.ParseUint(parts[1], 10, 31)
	if err != nil {
		return nil, fmt.Errorf("invalid clock rate (%v)", v)
	}

	rm := &RTPMap{
		PayloadType:  uint8(tmp),
		EncodingName: parts[0],
		ClockRate:    int(clockRate),
	}

	if len(parts) >= 3 {
		rm.EncodingParameters = parts[2]
	}

	return rm, nil
}

func unmarshalFramesize(v string) (*Framesize, error) {
	_, size, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok {
		return nil, fmt.Errorf("invalid framesize (%v)", v)
	}

	w, h, ok := strings.Cut(size, "-")
	if !ok {
		return nil, fmt.Errorf("invalid framesize (%v)", v)
	}

	width, err := strconv.ParseUint(w, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid framesize (%v)", v)
	}

	height, err := strconv.ParseUint(h, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid framesize (%v)", v)
	}

	return &Framesize{Width: int(width), Height: int(height)}, nil
}
