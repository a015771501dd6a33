// Package message contains the messages exchanged by the stages of a pipeline.
package message

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/rtcpreport"
)

// Type is the type of a message.
type Type int

// message types.
const (
	TypeRTSPRequest Type = iota
	TypeRTSPResponse
	TypeSDP
	TypeRTP
	TypeRTCP
	TypeElementary
	TypeH264
	TypeJPEG
	TypeISOM
	TypeXML
)

var typeLabels = map[Type]string{
	TypeRTSPRequest:  "rtsp_req",
	TypeRTSPResponse: "rtsp_rsp",
	TypeSDP:          "sdp",
	TypeRTP:          "rtp",
	TypeRTCP:         "rtcp",
	TypeElementary:   "elementary",
	TypeH264:         "h264",
	TypeJPEG:         "jpeg",
	TypeISOM:         "isom",
	TypeXML:          "xml",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return "unknown"
}

// Message is a message. It can be
// - *RTSPRequest
// - *RTSPResponse
// - *SDP
// - *RTP
// - *RTCP
// - *Elementary
// - *H264
// - *JPEG
// - *ISOM
// - *XML
type Message interface {
	Type() Type
	Payload() []byte
	isMessage()
}

// RTSPRequest is a serialized RTSP request.
type RTSPRequest struct {
	Data    []byte
	Request *base.Request
}

// Type implements Message.
func (*RTSPRequest) Type() Type { return TypeRTSPRequest }

// Payload implements Message.
func (m *RTSPRequest) Payload() []byte { return m.Data }

func (*RTSPRequest) isMessage() {}

// RTSPResponse is a RTSP response, header and body.
type RTSPResponse struct {
	Data     []byte
	Response *base.Response
}

// Type implements Message.
func (*RTSPResponse) Type() Type { return TypeRTSPResponse }

// Payload implements Message.
func (m *RTSPResponse) Payload() []byte { return m.Data }

func (*RTSPResponse) isMessage() {}

// SDP is a session description carried by a RTSP response body.
type SDP struct {
	Data    []byte
	Session *description.Session
}

// Type implements Message.
func (*SDP) Type() Type { return TypeSDP }

// Payload implements Message.
func (m *SDP) Payload() []byte { return m.Data }

func (*SDP) isMessage() {}

// RTP is a RTP packet received on an interleaved channel.
type RTP struct {
	Data    []byte
	Channel uint8
	Packet  *rtp.Packet

	// wall clock time in Unix milliseconds, nil until a sender report is received.
	NTPTimestamp *float64
}

// Type implements Message.
func (*RTP) Type() Type { return TypeRTP }

// Payload implements Message.
func (m *RTP) Payload() []byte { return m.Data }

func (*RTP) isMessage() {}

// RTCP is a RTCP packet received on an interleaved channel.
type RTCP struct {
	Data    []byte
	Channel uint8
	Record  rtcpreport.Record
}

// Type implements Message.
func (*RTCP) Type() Type { return TypeRTCP }

// Payload implements Message.
func (m *RTCP) Payload() []byte { return m.Data }

func (*RTCP) isMessage() {}

// Elementary is a raw access unit, for instance an AAC frame.
type Elementary struct {
	Data         []byte
	PayloadType  uint8
	Timestamp    uint32
	NTPTimestamp *float64
}

// Type implements Message.
func (*Elementary) Type() Type { return TypeElementary }

// Payload implements Message.
func (m *Elementary) Payload() []byte { return m.Data }

func (*Elementary) isMessage() {}

// H264 is a H264 access unit, made of NALUs prefixed by their
// 4-byte big endian length.
type H264 struct {
	Data         []byte
	PayloadType  uint8
	Timestamp    uint32
	NTPTimestamp *float64

	// type of the first NALU.
	NALType h264.NALUType

	// whether the access unit contains an IDR NALU.
	IDR bool
}

// Type implements Message.
func (*H264) Type() Type { return TypeH264 }

// Payload implements Message.
func (m *H264) Payload() []byte { return m.Data }

func (*H264) isMessage() {}

// JPEG is a complete JPEG image.
type JPEG struct {
	Data         []byte
	PayloadType  uint8
	Timestamp    uint32
	NTPTimestamp *float64
	Width        int
	Height       int
}

// Type implements Message.
func (*JPEG) Type() Type { return TypeJPEG }

// Payload implements Message.
func (m *JPEG) Payload() []byte { return m.Data }

func (*JPEG) isMessage() {}

// ISOM is a sequence of ISO-BMFF boxes.
type ISOM struct {
	Data []byte

	// box types, in order.
	Boxes []string

	// MIME type of the stream, set on initialization segments only.
	MIMEType string

	NTPTimestamp *float64

	// seconds elapsed since the presentation time, set on IDR fragments.
	CheckpointTime *float64
}

// Type implements Message.
func (*ISOM) Type() Type { return TypeISOM }

// Payload implements Message.
func (m *ISOM) Payload() []byte { return m.Data }

func (*ISOM) isMessage() {}

// XML is a XML document, usually ONVIF metadata.
type XML struct {
	Data         []byte
	PayloadType  uint8
	Timestamp    uint32
	NTPTimestamp *float64
}

// Type implements Message.
func (*XML) Type() Type { return TypeXML }

// Payload implements Message.
func (m *XML) Payload() []byte { return m.Data }

func (*XML) isMessage() {}
