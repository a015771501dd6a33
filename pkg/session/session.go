// Package session contains the state machine that drives a RTSP playback session.
package session

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/headers"
	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
	"github.com/bluenviron/mediastream/pkg/rtcpreport"
)

const (
	minKeepaliveInterval = 5 * time.Second
)

var absoluteURL = regexp.MustCompile(`^[^:]+://`)

var presetHeaders = map[base.Method]base.Header{
	base.Setup:    {"Blocksize": base.HeaderValue{"64000"}},
	base.Describe: {"Accept": base.HeaderValue{"application/sdp"}},
}

// State is the state of a session.
type State int

// states.
const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// Config is the configuration of a Session.
type Config struct {
	// URI of the stream.
	URI string

	// headers added to requests of a given method.
	Headers map[base.Method]base.Header

	// headers added to every request.
	DefaultHeaders base.Header

	Log logrus.FieldLogger
}

type command struct {
	method base.Method
	uri    string
	header base.Header

	// SETUP only.
	channel   uint8
	clockRate int
}

type channelClock struct {
	rtpTime  uint32
	ntpTime  float64
	received bool
}

// Session is a RTSP session.
// It is not safe for concurrent use: commands and responses must be fed
// from the same goroutine.
type Session struct {
	// called when a request must be written to the connection.
	OnRequest func(*base.Request)

	// called when a session description is received.
	OnSDP func(*description.Session)

	// called when the server replies with an error.
	OnError func(error)

	// called when the server confirms playback, with the played range.
	OnPlay func(*headers.Range)

	conf Config
	log  logrus.FieldLogger

	state             State
	startTime         float64
	cseq              int
	queue             []command
	waiting           bool
	history           map[int]command
	sessionID         string
	contentBase       string
	keepaliveInterval time.Duration
	clocks            map[uint8]*channelClock
	clockRates        map[uint8]int
}

// New allocates a Session.
func New(conf Config) (*Session, error) {
	if conf.URI == "" {
		return nil, fmt.Errorf("URI is missing")
	}

	_, err := url.Parse(conf.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid URI: %w", err)
	}

	log := conf.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Session{
		conf:       conf,
		log:        log,
		cseq:       1,
		history:    make(map[int]command),
		clocks:     make(map[uint8]*channelClock),
		clockRates: make(map[uint8]int),
	}, nil
}

// State returns the state of the session.
func (s *Session) State() State {
	return s.state
}

// SessionID returns the session id, or an empty string.
func (s *Session) SessionID() string {
	return s.sessionID
}

// Pending returns the number of commands waiting to be sent.
func (s *Session) Pending() int {
	return len(s.queue)
}

// KeepaliveInterval returns the interval between keepalive requests,
// or zero when the server did not advertise a session timeout.
func (s *Session) KeepaliveInterval() time.Duration {
	return s.keepaliveInterval
}

// Play starts or resumes playback. startTime is expressed in seconds and is
// used only when starting from the idle state.
func (s *Session) Play(startTime float64) error {
	switch s.state {
	case StateIdle:
		s.startTime = startTime
		s.enqueue(command{method: base.Options})
		s.enqueue(command{method: base.Describe})

	case StatePaused:
		if s.sessionID == "" {
			return liberrors.ErrClientNoSession{}
		}
		s.enqueue(command{method: base.Play})
	}

	s.state = StatePlaying
	s.dequeue()
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() {
	s.enqueue(command{method: base.Pause})
	s.state = StatePaused
	s.dequeue()
}

// Stop ends the session. Pending commands are dropped.
// When a request is still awaiting its response, TEARDOWN stays queued
// and is sent once that response is handled.
func (s *Session) Stop() {
	s.queue = nil

	if s.sessionID != "" {
		s.enqueue(command{method: base.Teardown})
	}

	s.state = StateIdle
	s.keepaliveInterval = 0
	s.dequeue()
}

// Keepalive sends an OPTIONS request in order to keep the session alive.
func (s *Session) Keepalive() {
	s.enqueue(command{method: base.Options})
	s.dequeue()
}

// HandleResponse processes a response and sends the next command.
func (s *Session) HandleResponse(msg *message.RTSPResponse) error {
	s.waiting = false

	res := msg.Response

	cseq, ok := res.CSeq()
	if !ok {
		return liberrors.ErrClientCSeqMissing{}
	}

	cmd, ok := s.history[cseq]
	method := cmd.method
	if ok {
		delete(s.history, cseq)
	} else {
		s.log.WithField("cseq", cseq).Warn(liberrors.ErrClientUnexpectedCSeq{CSeq: cseq})
	}

	s.log.WithFields(logrus.Fields{
		"cseq":   cseq,
		"method": method,
		"status": int(res.StatusCode),
	}).Debug("response received")

	closed := res.ConnectionClosed()

	if s.sessionID == "" && !closed {
		s.readSession(res)
	}

	if s.contentBase == "" {
		s.contentBase = res.Header.Get("Content-Base")
	}

	if res.StatusCode >= base.StatusBadRequest {
		s.emitError(liberrors.ErrClientWrongStatusCode{
			Code:    res.StatusCode,
			Message: res.StatusMessage,
		})
	} else {
		switch method {
		case base.Setup:
			s.handleSetupResponse(cmd, res)

		case base.Play:
			s.handlePlayResponse(res)

		case base.Teardown:
			s.sessionID = ""
		}
	}

	if closed {
		s.log.WithField("session", s.sessionID).Debug("connection closed by the server")
		s.sessionID = ""
	}

	s.dequeue()
	return nil
}

func (s *Session) readSession(res *base.Response) {
	v, ok := res.Header["Session"]
	if !ok {
		return
	}

	var sx headers.Session
	err := sx.Unmarshal(v)
	if err != nil {
		s.emitError(liberrors.ErrClientSessionHeaderInvalid{Err: err})
		return
	}

	s.sessionID = sx.Session

	if sx.Timeout != nil {
		s.keepaliveInterval = max(minKeepaliveInterval,
			time.Duration(*sx.Timeout)*time.Second-5*time.Second)
	}
}

// handleSetupResponse binds the clock rate of a media to the interleaved
// channel granted by the server, which can differ from the requested one.
func (s *Session) handleSetupResponse(cmd command, res *base.Response) {
	channel := cmd.channel

	if v, ok := res.Header["Transport"]; ok {
		var th headers.Transport
		err := th.Unmarshal(v)
		if err != nil {
			s.log.WithError(err).Warn("invalid Transport header")
		} else if th.InterleavedIDs != nil && th.InterleavedIDs[0] != int(channel) {
			s.log.WithFields(logrus.Fields{
				"requested": channel,
				"granted":   th.InterleavedIDs[0],
			}).Debug("server assigned different interleaved channels")
			channel = uint8(th.InterleavedIDs[0])
		}
	}

	s.clockRates[channel] = cmd.clockRate
}

func (s *Session) handlePlayResponse(res *base.Response) {
	if s.OnPlay == nil {
		return
	}

	v, ok := res.Header["Range"]
	if !ok {
		s.OnPlay(nil)
		return
	}

	var ra headers.Range
	err := ra.Unmarshal(v)
	if err != nil {
		s.log.WithError(err).Warn("invalid Range header")
		s.OnPlay(nil)
		return
	}

	s.OnPlay(&ra)
}

// HandleSDP sets up every media of a session description and, if playback
// was requested, starts it.
func (s *Session) HandleSDP(msg *message.SDP) {
	s.clocks = make(map[uint8]*channelClock)
	s.clockRates = make(map[uint8]int)

	for i, media := range msg.Session.Medias {
		if media.RTPMap == nil {
			s.log.WithField("payloadType", media.PayloadType).Warn("skipping media without rtpmap")
			continue
		}

		if media.Control == "" {
			s.log.WithField("payloadType", media.PayloadType).Warn("skipping media without control")
			continue
		}

		rtpChannel := i * 2

		s.enqueue(command{
			method: base.Setup,
			uri:    s.controlURI(media.Control),
			header: base.Header{
				"Transport": headers.Transport{
					Protocol:       headers.TransportProtocolTCP,
					Unicast:        true,
					InterleavedIDs: &[2]int{rtpChannel, rtpChannel + 1},
				}.Marshal(),
			},
			channel:   uint8(rtpChannel),
			clockRate: media.RTPMap.ClockRate,
		})

		s.clockRates[uint8(rtpChannel)] = media.RTPMap.ClockRate
	}

	if s.state == StatePlaying {
		s.enqueue(command{
			method: base.Play,
			header: base.Header{
				"Range": base.HeaderValue{"npt=" + strconv.FormatFloat(s.startTime, 'f', -1, 64) + "-"},
			},
		})
	}

	s.dequeue()

	if s.OnSDP != nil {
		s.OnSDP(msg.Session)
	}
}

func (s *Session) controlURI(control string) string {
	if absoluteURL.MatchString(control) {
		return control
	}

	prefix := s.contentBase
	if prefix == "" {
		prefix = s.conf.URI
	}

	if control == "*" {
		return prefix
	}

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return prefix + control
}

// HandleRTCP records the wall clock reference carried by sender reports.
func (s *Session) HandleRTCP(msg *message.RTCP) {
	sr, ok := msg.Record.(*rtcpreport.SenderReport)
	if !ok || msg.Channel == 0 {
		return
	}

	s.clocks[msg.Channel-1] = &channelClock{
		rtpTime:  sr.RTPTimestamp,
		ntpTime:  sr.UnixMillis(),
		received: true,
	}
}

// StampRTP sets the wall clock time of a RTP packet, once a sender report
// has been received on the same media.
func (s *Session) StampRTP(msg *message.RTP) {
	clock, ok := s.clocks[msg.Channel]
	if !ok || !clock.received {
		return
	}

	clockRate := s.clockRates[msg.Channel]
	if clockRate == 0 {
		return
	}

	dt := int32(msg.Packet.Timestamp - clock.rtpTime)
	v := (float64(dt)/float64(clockRate))*1000 + clock.ntpTime
	msg.NTPTimestamp = &v
}

func (s *Session) enqueue(cmd command) {
	s.queue = append(s.queue, cmd)
}

func (s *Session) dequeue() {
	if s.waiting || len(s.queue) == 0 {
		return
	}

	cmd := s.queue[0]
	s.queue = s.queue[1:]
	s.send(cmd)
}

func (s *Session) send(cmd command) {
	uri := cmd.uri
	if uri == "" {
		uri = s.conf.URI
	}

	h := base.Header{
		"CSeq": base.HeaderValue{strconv.Itoa(s.cseq)},
	}
	h.Merge(s.conf.DefaultHeaders)
	h.Merge(presetHeaders[cmd.method])
	h.Merge(s.conf.Headers[cmd.method])
	h.Merge(cmd.header)

	if s.sessionID != "" {
		h.Set("Session", s.sessionID)
	}

	s.history[s.cseq] = cmd
	s.cseq++
	s.waiting = true

	req := &base.Request{
		Method: cmd.method,
		URI:    uri,
		Header: h,
	}

	s.log.WithFields(logrus.Fields{
		"cseq":   s.cseq - 1,
		"method": cmd.method,
	}).Debug("sending request")

	if s.OnRequest != nil {
		s.OnRequest(req)
	}
}

func (s *Session) emitError(err error) {
	s.log.WithError(err).Warn("session error")

	if s.OnError != nil {
		s.OnError(err)
	}
}
