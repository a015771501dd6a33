// Package rtcpreport decodes RTCP packets into report records.
package rtcpreport

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtcp"

	"github.com/bluenviron/mediastream/pkg/ntp"
)

const (
	headerLength      = 4
	reportBlockLength = 24
)

// Record is a decoded RTCP packet. It can be
// - *SenderReport
// - *ReceiverReport
// - *SourceDescription
// - *Goodbye
// - *ApplicationDefined
// - *Unknown
type Record interface {
	PacketHeader() rtcp.Header
}

// SenderReport is a SR packet.
type SenderReport struct {
	Header       rtcp.Header
	SSRC         uint32
	NTPMost      uint32
	NTPLeast     uint32
	RTPTimestamp uint32
	PacketCount  uint32
	OctetCount   uint32
	Reports      []rtcp.ReceptionReport
}

// PacketHeader implements Record.
func (r *SenderReport) PacketHeader() rtcp.Header {
	return r.Header
}

// UnixMillis returns the wall clock time of the report, in milliseconds since the Unix epoch.
func (r *SenderReport) UnixMillis() float64 {
	return ntp.UnixMillis(r.NTPMost, r.NTPLeast)
}

// ReceiverReport is a RR packet.
type ReceiverReport struct {
	Header  rtcp.Header
	SSRC    uint32
	Reports []rtcp.ReceptionReport
}

// PacketHeader implements Record.
func (r *ReceiverReport) PacketHeader() rtcp.Header {
	return r.Header
}

// SDESItem is an item of a source description chunk.
type SDESItem struct {
	Type rtcp.SDESType

	// prefix of PRIV items.
	Prefix string

	Text string
}

// SDESChunk is a source description chunk.
type SDESChunk struct {
	Source uint32
	Items  []SDESItem
}

// SourceDescription is a SDES packet.
type SourceDescription struct {
	Header rtcp.Header
	Chunks []SDESChunk
}

// PacketHeader implements Record.
func (r *SourceDescription) PacketHeader() rtcp.Header {
	return r.Header
}

// Goodbye is a BYE packet.
type Goodbye struct {
	Header  rtcp.Header
	Sources []uint32
	Reason  string
}

// PacketHeader implements Record.
func (r *Goodbye) PacketHeader() rtcp.Header {
	return r.Header
}

// ApplicationDefined is an APP packet.
type ApplicationDefined struct {
	Header  rtcp.Header
	SubType uint8
	SSRC    uint32
	Name    string
	Data    []byte
}

// PacketHeader implements Record.
func (r *ApplicationDefined) PacketHeader() rtcp.Header {
	return r.Header
}

// Unknown is a packet with an unsupported type.
type Unknown struct {
	Header rtcp.Header
	Data   []byte
}

// PacketHeader implements Record.
func (r *Unknown) PacketHeader() rtcp.Header {
	return r.Header
}

// PacketLength returns the length of the RTCP packet at the start of buf,
// or zero if the header is incomplete.
func PacketLength(buf []byte) int {
	if len(buf) < headerLength {
		return 0
	}
	return int(binary.BigEndian.Uint16(buf[2:]))*4 + headerLength
}

// Decode decodes a single RTCP packet.
func Decode(buf []byte) (Record, error) {
	var h rtcp.Header
	err := h.Unmarshal(buf)
	if err != nil {
		return nil, err
	}

	size := int(h.Length)*4 + headerLength
	if len(buf) < size {
		return nil, fmt.Errorf("buffer is too short: %d < %d", len(buf), size)
	}
	buf = buf[:size]

	if h.Padding {
		if size == headerLength {
			return nil, fmt.Errorf("padding bit set on an empty packet")
		}
		pad := int(buf[size-1])
		if pad == 0 || pad > size-headerLength {
			return nil, fmt.Errorf("invalid padding length (%d)", pad)
		}
		buf = buf[:size-pad]
	}

	switch h.Type {
	case rtcp.TypeSenderReport:
		return decodeSenderReport(h, buf)

	case rtcp.TypeReceiverReport:
		return decodeReceiverReport(h, buf)

	case rtcp.TypeSourceDescription:
		return decodeSourceDescription(h, buf)

	case rtcp.TypeGoodbye:
		return decodeGoodbye(h, buf)

	case rtcp.TypeApplicationDefined:
		return decodeApplicationDefined(h, buf)
	}

	return &Unknown{Header: h, Data: buf[headerLength:]}, nil
}

func decodeReports(count uint8, buf []byte) ([]rtcp.ReceptionReport, error) {
	if len(buf) < int(count)*reportBlockLength {
		return nil, fmt.Errorf("buffer is too short for %d report blocks", count)
	}

	reports := make([]rtcp.ReceptionReport, count)
	for i := range reports {
		err := reports[i].Unmarshal(buf[i*reportBlockLength : (i+1)*reportBlockLength])
		if err != nil {
			return nil, err
		}
	}

	return reports, nil
}

func decodeSenderReport(h rtcp.Header, buf []byte) (*SenderReport, error) {
	if len(buf) < 28 {
		return nil, fmt.Errorf("sender report is too short")
	}

	reports, err := decodeReports(h.Count, buf[28:])
	if err != nil {
		return nil, err
	}

	return &SenderReport{
		Header:       h,
		SSRC:         binary.BigEndian.Uint32(buf[4:]),
		NTPMost:      binary.BigEndian.Uint32(buf[8:]),
		NTPLeast:     binary.BigEndian.Uint32(buf[12:]),
		RTPTimestamp: binary.BigEndian.Uint32(buf[16:]),
		PacketCount:  binary.BigEndian.Uint32(buf[20:]),
		OctetCount:   binary.BigEndian.Uint32(buf[24:]),
		Reports:      reports,
	}, nil
}

func decodeReceiverReport(h rtcp.Header, buf []byte) (*ReceiverReport, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("receiver report is too short")
	}

	reports, err := decodeReports(h.Count, buf[8:])
	if err != nil {
		return nil, err
	}

	return &ReceiverReport{
		Header:  h,
		SSRC:    binary.BigEndian.Uint32(buf[4:]),
		Reports: reports,
	}, nil
}

func decodeSourceDescription(h rtcp.Header, buf []byte) (*SourceDescription, error) {
	r := &SourceDescription{Header: h}
	pos := headerLength

	for i := 0; i < int(h.Count); i++ {
		if len(buf)-pos < 4 {
			return nil, fmt.Errorf("source description is too short")
		}

		chunk := SDESChunk{Source: binary.BigEndian.Uint32(buf[pos:])}
		pos += 4

		for {
			if pos >= len(buf) {
				return nil, fmt.Errorf("source description is too short")
			}

			typ := rtcp.SDESType(buf[pos])
			pos++

			if typ == rtcp.SDESEnd {
				// next chunk starts at a word boundary
				pos = (pos + 3) &^ 3
				break
			}

			if pos >= len(buf) {
				return nil, fmt.Errorf("source description is too short")
			}

			le := int(buf[pos])
			pos++

			if len(buf)-pos < le {
				return nil, fmt.Errorf("source description item is too short")
			}
			item := buf[pos : pos+le]
			pos += le

			if typ == rtcp.SDESPrivate {
				if len(item) == 0 || int(item[0]) > len(item)-1 {
					return nil, fmt.Errorf("invalid private item")
				}
				pl := int(item[0])
				chunk.Items = append(chunk.Items, SDESItem{
					Type:   typ,
					Prefix: string(item[1 : 1+pl]),
					Text:   string(item[1+pl:]),
				})
			} else {
				chunk.Items = append(chunk.Items, SDESItem{
					Type: typ,
					Text: string(item),
				})
			}
		}

		r.Chunks = append(r.Chunks, chunk)
	}

	return r, nil
}

func decodeGoodbye(h rtcp.Header, buf []byte) (*Goodbye, error) {
	end := headerLength + int(h.Count)*4
	if len(buf) < end {
		return nil, fmt.Errorf("goodbye is too short")
	}

	r := &Goodbye{
		Header:  h,
		Sources: make([]uint32, h.Count),
	}

	for i := range r.Sources {
		r.Sources[i] = binary.BigEndian.Uint32(buf[headerLength+i*4:])
	}

	if int(h.Length) > int(h.Count) && len(buf) > end {
		le := int(buf[end])
		if len(buf)-end-1 < le {
			return nil, fmt.Errorf("goodbye reason is too short")
		}
		r.Reason = string(buf[end+1 : end+1+le])
	}

	return r, nil
}

func decodeApplicationDefined(h rtcp.Header, buf []byte) (*ApplicationDefined, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("application defined packet is too short")
	}

	return &ApplicationDefined{
		Header:  h,
		SubType: h.Count,
		SSRC:    binary.BigEndian.Uint32(buf[4:]),
		Name:    string(buf[8:12]),
		Data:    buf[12:],
	}, nil
}
