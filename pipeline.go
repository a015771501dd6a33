// Package mediastream contains a client-side RTSP media pipeline that
// turns a RTSP-over-TCP byte stream into RTP, access units and fragmented MP4.
package mediastream

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/demux"
	"github.com/bluenviron/mediastream/pkg/fmp4"
	"github.com/bluenviron/mediastream/pkg/format"
	"github.com/bluenviron/mediastream/pkg/headers"
	"github.com/bluenviron/mediastream/pkg/message"
	"github.com/bluenviron/mediastream/pkg/mp4capture"
	"github.com/bluenviron/mediastream/pkg/rtcpreport"
	"github.com/bluenviron/mediastream/pkg/session"
)

// Pipeline drives the stages of a single connection:
// demultiplexer, session, depayloaders, MP4 muxer and capture.
// Stages run synchronously, in order, inside Write().
// It is not safe for concurrent use.
type Pipeline struct {
	//
	// RTSP parameters
	//
	// URI of the stream.
	URI string
	// headers added to requests of a given method.
	Headers map[base.Method]base.Header
	// headers added to every request.
	DefaultHeaders base.Header
	// encodings that are forwarded without codec-specific processing.
	BasicEncodings []string
	// maximum size of a MP4 capture.
	// It defaults to mp4capture.DefaultMaxSize.
	CaptureMaxSize int
	// logger.
	// It defaults to a discarding logger.
	Log logrus.FieldLogger

	//
	// callbacks
	//
	// called with every request that must be written to the connection (required).
	OnRequest func(*message.RTSPRequest)
	// called with every message produced by the pipeline.
	OnMessage func(message.Message)
	// called when the server replies with an error.
	OnError func(error)
	// called when the server confirms playback.
	OnPlay func(*headers.Range)
	// called when the wall clock time of the MP4 presentation is known.
	OnSync func(ntpPresentationTime float64)

	demuxer      *demux.Parser
	session      *session.Session
	depayloaders map[uint8]format.Depayloader
	muxer        *fmp4.Muxer
	capture      *mp4capture.Capture
}

// Initialize initializes the pipeline.
func (p *Pipeline) Initialize() error {
	if p.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.Log = l
	}
	if p.CaptureMaxSize == 0 {
		p.CaptureMaxSize = mp4capture.DefaultMaxSize
	}

	if p.OnRequest == nil {
		p.OnRequest = func(*message.RTSPRequest) {
		}
	}
	if p.OnMessage == nil {
		p.OnMessage = func(message.Message) {
		}
	}
	if p.OnError == nil {
		p.OnError = func(error) {
		}
	}

	p.capture = mp4capture.New(p.CaptureMaxSize, p.Log)

	return p.Reset()
}

// Reset rebuilds every stage, dropping buffered bytes and session state.
// It must be called before feeding the bytes of a new connection.
// An active capture is stopped.
func (p *Pipeline) Reset() error {
	s, err := session.New(session.Config{
		URI:            p.URI,
		Headers:        p.Headers,
		DefaultHeaders: p.DefaultHeaders,
		Log:            p.Log,
	})
	if err != nil {
		return err
	}

	s.OnRequest = func(req *base.Request) {
		p.OnRequest(&message.RTSPRequest{
			Data:    req.Marshal(),
			Request: req,
		})
	}
	s.OnError = p.OnError
	s.OnPlay = p.OnPlay

	p.capture.Stop()

	p.demuxer = demux.New(p.Log)
	p.session = s
	p.depayloaders = make(map[uint8]format.Depayloader)
	p.muxer = fmp4.New(p.Log)
	p.muxer.OnSync = p.OnSync

	return nil
}

// Play starts or resumes playback, from startTime seconds when starting.
func (p *Pipeline) Play(startTime float64) error {
	return p.session.Play(startTime)
}

// Pause pauses playback.
func (p *Pipeline) Pause() {
	p.session.Pause()
}

// Stop tears down the session.
func (p *Pipeline) Stop() {
	p.session.Stop()
}

// Keepalive sends a keepalive request.
func (p *Pipeline) Keepalive() {
	p.session.Keepalive()
}

// KeepaliveInterval returns the interval between keepalive requests, or zero.
func (p *Pipeline) KeepaliveInterval() time.Duration {
	return p.session.KeepaliveInterval()
}

// State returns the state of the session.
func (p *Pipeline) State() session.State {
	return p.session.State()
}

// StartCapture arms a MP4 capture, that begins at the next initialization segment.
func (p *Pipeline) StartCapture(onDone func([]byte)) {
	p.capture.Start(onDone)
}

// StopCapture ends the current MP4 capture.
func (p *Pipeline) StopCapture() {
	p.capture.Stop()
}

// Tracks returns the tracks of the MP4 stream.
func (p *Pipeline) Tracks() []*fmp4.Track {
	return p.muxer.Tracks()
}

// Write feeds a chunk of the incoming byte stream.
// A returned error is fatal: the connection must be closed and
// the pipeline reset before being used again.
func (p *Pipeline) Write(chunk []byte) error {
	msgs, err := p.demuxer.Parse(chunk)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		switch msg := msg.(type) {
		case *message.RTSPResponse:
			p.OnMessage(msg)

			err := p.session.HandleResponse(msg)
			if err != nil {
				p.OnError(err)
			}

		case *message.SDP:
			p.handleSDP(msg)

		case *message.RTCP:
			if u, ok := msg.Record.(*rtcpreport.Unknown); ok {
				p.Log.WithFields(logrus.Fields{
					"channel":    msg.Channel,
					"packetType": uint8(u.Header.Type),
				}).Debug("unsupported RTCP packet")
			}

			p.session.HandleRTCP(msg)
			p.OnMessage(msg)

		case *message.RTP:
			p.session.StampRTP(msg)
			p.OnMessage(msg)
			p.handleRTP(msg)
		}
	}

	return nil
}

func (p *Pipeline) handleSDP(msg *message.SDP) {
	p.session.HandleSDP(msg)
	p.OnMessage(msg)

	p.depayloaders = make(map[uint8]format.Depayloader)
	for _, d := range format.NewDepayloaders(msg.Session, p.Log, p.BasicEncodings...) {
		pt, _ := d.PayloadType()
		p.depayloaders[pt] = d
	}

	init, err := p.muxer.Init(msg.Session)
	if err != nil {
		p.Log.WithError(err).Warn("MP4 muxing is disabled")
		return
	}

	p.writeISOM(init)
}

func (p *Pipeline) handleRTP(msg *message.RTP) {
	d, ok := p.depayloaders[msg.Packet.PayloadType]
	if !ok {
		return
	}

	au, err := d.Decode(msg)
	if err != nil {
		if !errors.Is(err, format.ErrMorePacketsNeeded) {
			p.Log.WithField("payloadType", msg.Packet.PayloadType).WithError(err).Warn("unable to decode RTP packet")
		}
		return
	}

	p.OnMessage(au)

	frag, err := p.muxer.Write(au)
	if err != nil {
		p.Log.WithField("payloadType", msg.Packet.PayloadType).WithError(err).Warn("unable to mux access unit")
		return
	}

	if frag != nil {
		p.writeISOM(frag)
	}
}

func (p *Pipeline) writeISOM(msg *message.ISOM) {
	p.capture.Write(msg)
	p.OnMessage(msg)
}
