// Package demux contains a demultiplexer of RTSP-over-TCP byte streams.
package demux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
	"github.com/bluenviron/mediastream/pkg/rtcpreport"
)

const (
	interleavedHeaderLength = 4
	interleavedMagic        = 0x24
)

var rtspMagic = []byte("RTSP")

type state int

const (
	stateIdle state = iota
	stateInterleaved
	stateRTSP
)

func headerEnd(buf []byte) (int, int) {
	best := -1
	bestLen := 0

	for _, term := range [][]byte{
		[]byte("\r\n\r\n"),
		[]byte("\r\r"),
		[]byte("\n\n"),
	} {
		i := bytes.Index(buf, term)
		if i >= 0 && (best < 0 || i < best) {
			best = i
			bestLen = len(term)
		}
	}

	return best, bestLen
}

// Parser splits an interleaved RTSP byte stream into messages.
type Parser struct {
	log   logrus.FieldLogger
	buf   []byte
	state state
	err   error
}

// New allocates a Parser.
func New(log logrus.FieldLogger) *Parser {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Parser{log: log}
}

// Reset discards buffered data and recovers from framing errors.
func (p *Parser) Reset() {
	p.buf = nil
	p.state = stateIdle
	p.err = nil
}

// Buffered returns the number of bytes waiting for the rest of a message.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Parse adds a chunk of data and returns the messages that are complete.
// A framing error is permanent: every following call returns it until Reset is called.
func (p *Parser) Parse(chunk []byte) ([]message.Message, error) {
	if p.err != nil {
		return nil, p.err
	}

	p.buf = append(p.buf, chunk...)

	var msgs []message.Message
	consumed := 0

	for {
		if p.state == stateIdle {
			st, err := classify(p.buf[consumed:])
			if err != nil {
				p.err = err
				return msgs, err
			}
			if st == stateIdle {
				break
			}
			p.state = st
		}

		var n int
		var err error

		switch p.state {
		case stateInterleaved:
			n, msgs = p.parseInterleaved(p.buf[consumed:], msgs)

		case stateRTSP:
			n, msgs, err = p.parseRTSP(p.buf[consumed:], msgs)
			if err != nil {
				p.err = err
				return msgs, err
			}
		}

		if n == 0 {
			break
		}

		consumed += n
		p.state = stateIdle
	}

	if consumed != 0 {
		// do not retain the memory of emitted messages
		p.buf = append([]byte(nil), p.buf[consumed:]...)
	}

	return msgs, nil
}

func classify(buf []byte) (state, error) {
	if len(buf) == 0 {
		return stateIdle, nil
	}

	if buf[0] == interleavedMagic {
		return stateInterleaved, nil
	}

	if len(buf) < len(rtspMagic) {
		if bytes.HasPrefix(rtspMagic, buf) {
			return stateIdle, nil
		}
	} else if bytes.HasPrefix(buf, rtspMagic) {
		return stateRTSP, nil
	}

	prefix := buf
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	return stateIdle, liberrors.ErrFraming{Prefix: append([]byte(nil), prefix...)}
}

func (p *Parser) parseInterleaved(buf []byte, msgs []message.Message) (int, []message.Message) {
	if len(buf) < interleavedHeaderLength {
		return 0, msgs
	}

	channel := buf[1]
	end := interleavedHeaderLength + int(binary.BigEndian.Uint16(buf[2:]))

	if len(buf) < end {
		return 0, msgs
	}

	pkt := buf[interleavedHeaderLength:end]

	if channel%2 == 0 {
		var rp rtp.Packet
		err := rp.Unmarshal(pkt)
		if err != nil {
			p.log.WithField("channel", channel).Warn(liberrors.ErrCodec{Format: "RTP", Err: err})
			return end, msgs
		}

		return end, append(msgs, &message.RTP{
			Data:    pkt,
			Channel: channel,
			Packet:  &rp,
		})
	}

	// compound packets
	for len(pkt) > 0 {
		size := rtcpreport.PacketLength(pkt)
		if size == 0 || size > len(pkt) {
			p.log.WithField("channel", channel).Warn(liberrors.ErrCodec{
				Format: "RTCP",
				Err:    fmt.Errorf("invalid compound packet, %d trailing bytes", len(pkt)),
			})
			break
		}

		rec, err := rtcpreport.Decode(pkt[:size])
		if err != nil {
			p.log.WithField("channel", channel).Warn(liberrors.ErrCodec{Format: "RTCP", Err: err})
		} else {
			msgs = append(msgs, &message.RTCP{
				Data:    pkt[:size],
				Channel: channel,
				Record:  rec,
			})
		}

		pkt = pkt[size:]
	}

	return end, msgs
}

func (p *Parser) parseRTSP(buf []byte, msgs []message.Message) (int, []message.Message, error) {
	i, termLen := headerEnd(buf)
	if i < 0 {
		return 0, msgs, nil
	}

	head := buf[:i+termLen]

	cl, err := base.ContentLength(head[:i])
	if err != nil {
		return 0, msgs, err
	}

	end := len(head) + cl
	if len(buf) < end {
		return 0, msgs, nil
	}

	data := buf[:end]

	raw := data
	if termLen == 2 && head[i] == '\r' {
		raw = append(bytes.ReplaceAll(head, []byte("\r"), []byte("\r\n")), data[len(head):]...)
	}

	var res base.Response
	err = res.Unmarshal(raw)
	if err != nil {
		return 0, msgs, fmt.Errorf("invalid RTSP response: %w", err)
	}

	msgs = append(msgs, &message.RTSPResponse{
		Data:     data,
		Response: &res,
	})

	if isSDP(&res) {
		var desc description.Session
		err = desc.Unmarshal(res.Body)
		if err != nil {
			cseq, _ := res.CSeq()
			p.log.WithField("cseq", cseq).Warn(liberrors.ErrCodec{Format: "SDP", Err: err})
		} else {
			msgs = append(msgs, &message.SDP{
				Data:    res.Body,
				Session: &desc,
			})
		}
	}

	return end, msgs, nil
}

func isSDP(res *base.Response) bool {
	if len(res.Body) == 0 {
		return false
	}

	ct, _, _ := strings.Cut(res.Header.Get("Content-Type"), ";")
	if strings.EqualFold(strings.TrimSpace(ct), "application/sdp") {
		return true
	}

	return bytes.HasPrefix(res.Body, []byte("v=0"))
}
