package rtpmjpeg

import (
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/jpeg"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// ErrNoQuantizationTable is returned when a frame is completed
// without having received its first fragment.
var ErrNoQuantizationTable = errors.New("no quantization header present")

// Decoder is a RTP/M-JPEG depayloader.
// Specification: https://datatracker.ietf.org/doc/html/rfc2435
type Decoder struct {
	log         logrus.FieldLogger
	payloadType uint8
	bound       bool

	// fallbacks for dimensions that can't be encoded in the JPEG header.
	defaultWidth  int
	defaultHeight int

	fragments       [][]byte
	fragmentsSize   int
	firstJpegHeader *mainHeader
	qTables         [][]byte
	restartInterval uint16
}

// New allocates a Decoder bound to the first JPEG media.
// If there's no such media, the decoder is inert.
func New(medias []*description.Media, log logrus.FieldLogger) *Decoder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	d := &Decoder{log: log}

	for _, m := range medias {
		if m.Type != description.MediaTypeVideo {
			continue
		}

		if m.EncodingName() == encodingName ||
			(m.RTPMap == nil && m.PayloadType == staticPayloadType) {
			d.payloadType = m.PayloadType
			if m.RTPMap != nil {
				d.payloadType = m.RTPMap.PayloadType
			}
			d.bound = true

			if m.Framesize != nil {
				d.defaultWidth = m.Framesize.Width
				d.defaultHeight = m.Framesize.Height
			}
			break
		}
	}

	return d
}

// PayloadType returns the payload type the decoder is bound to.
func (d *Decoder) PayloadType() (uint8, bool) {
	return d.payloadType, d.bound
}

func (d *Decoder) reset() {
	d.fragments = nil
	d.fragmentsSize = 0
	d.firstJpegHeader = nil
	d.qTables = nil
	d.restartInterval = 0
}

// Decode decodes an image from a RTP packet.
// Fragments are concatenated in arrival order.
func (d *Decoder) Decode(m *message.RTP) (message.Message, error) {
	jh, byts, err := parseMainHeader(m.Packet.Payload)
	if err != nil {
		d.reset()
		return nil, err
	}

	var restartInterval uint16
	if jh.hasRestartHeader() {
		restartInterval, byts, err = parseRestartHeader(byts)
		if err != nil {
			d.reset()
			return nil, err
		}
	}

	if jh.fragmentOffset == 0 {
		d.reset()

		if jh.q >= 128 {
			d.qTables, byts, err = parseQuantizationHeader(byts)
			if err != nil {
				return nil, err
			}
		} else {
			t := MakeQuantizationTables(jh.q)
			d.qTables = t[:]
		}

		d.firstJpegHeader = &jh
		d.restartInterval = restartInterval
	}

	d.fragments = append(d.fragments, byts)
	d.fragmentsSize += len(byts)

	if !m.Packet.Marker {
		return nil, ErrMorePacketsNeeded
	}

	defer d.reset()

	if d.firstJpegHeader == nil {
		return nil, ErrNoQuantizationTable
	}

	width := d.firstJpegHeader.width
	if width == 0 {
		width = d.defaultWidth
	}

	height := d.firstJpegHeader.height
	if height == 0 {
		height = d.defaultHeight
	}

	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image size is unknown")
	}

	return &message.JPEG{
		Data:         d.marshalImage(width, height),
		PayloadType:  m.Packet.PayloadType,
		Timestamp:    m.Packet.Timestamp,
		NTPTimestamp: m.NTPTimestamp,
		Width:        width,
		Height:       height,
	}, nil
}

func (d *Decoder) marshalImage(width int, height int) []byte {
	buf := make([]byte, 0, d.fragmentsSize+1024)

	buf = jpeg.StartOfImage{}.Marshal(buf)

	var dqt jpeg.DefineQuantizationTable
	for i, t := range d.qTables {
		dqt.Tables = append(dqt.Tables, jpeg.QuantizationTable{
			ID:   uint8(i),
			Data: t,
		})
	}
	buf = dqt.Marshal(buf)

	if d.restartInterval != 0 {
		buf = append(buf, 0xFF, jpeg.MarkerDefineRestartInterval, 0, 4,
			byte(d.restartInterval>>8), byte(d.restartInterval))
	}

	buf = jpeg.StartOfFrame1{
		Type:                   d.firstJpegHeader.imageType(),
		Width:                  width,
		Height:                 height,
		QuantizationTableCount: uint8(len(d.qTables)),
	}.Marshal(buf)

	buf = jpeg.DefineHuffmanTable{
		Codes:       lumDcCodeLens,
		Symbols:     lumDcSymbols,
		TableNumber: 0,
		TableClass:  0,
	}.Marshal(buf)

	buf = jpeg.DefineHuffmanTable{
		Codes:       lumAcCodelens,
		Symbols:     lumAcSymbols,
		TableNumber: 0,
		TableClass:  1,
	}.Marshal(buf)

	buf = jpeg.DefineHuffmanTable{
		Codes:       chmDcCodelens,
		Symbols:     chmDcSymbols,
		TableNumber: 1,
		TableClass:  0,
	}.Marshal(buf)

	buf = jpeg.DefineHuffmanTable{
		Codes:       chmAcCodelens,
		Symbols:     chmAcSymbols,
		TableNumber: 1,
		TableClass:  1,
	}.Marshal(buf)

	buf = jpeg.StartOfScan{}.Marshal(buf)

	for _, f := range d.fragments {
		buf = append(buf, f...)
	}

	l := len(buf)
	if buf[l-2] != 0xFF || buf[l-1] != jpeg.MarkerEndOfImage {
		buf = append(buf, 0xFF, jpeg.MarkerEndOfImage)
	}

	return buf
}
