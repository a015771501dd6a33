package mediastream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/headers"
	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
	"github.com/bluenviron/mediastream/pkg/session"
)

const (
	clientReadBufferSize = 64 * 1024
	clientChunkQueueSize = 64
)

// Transport is the transport used to reach the server.
type Transport string

// transports.
const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "websocket"
)

func emptyTimer() *time.Timer {
	t := time.NewTimer(0)
	<-t.C
	return t
}

type clientPlayReq struct {
	startTime float64
	res       chan error
}

type clientCaptureReq struct {
	onDone func([]byte)
}

// Client reads a stream from a RTSP server and feeds it into a Pipeline.
type Client struct {
	//
	// connection parameters
	//
	// URI of the stream.
	URI string
	// transport.
	// It defaults to TransportTCP.
	Transport Transport
	// URL of the WebSocket endpoint, used with TransportWebSocket.
	WebSocketURL string
	// SOCKS5 proxy URL, used with TransportTCP.
	Proxy string
	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration

	//
	// RTSP parameters
	//
	// headers added to requests of a given method.
	Headers map[base.Method]base.Header
	// headers added to every request.
	DefaultHeaders base.Header
	// encodings that are forwarded without codec-specific processing.
	BasicEncodings []string
	// maximum size of a MP4 capture.
	CaptureMaxSize int
	// logger.
	// It defaults to logrus.StandardLogger().
	Log logrus.FieldLogger

	//
	// system functions (all optional)
	//
	// function used to initialize the TCP connection.
	// It defaults to (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)

	//
	// callbacks (all optional)
	//
	// called with every message produced by the pipeline.
	OnMessage func(message.Message)
	// called when the server replies with an error.
	OnError func(error)
	// called when the server confirms playback.
	OnPlay func(*headers.Range)
	// called when the wall clock time of the MP4 presentation is known.
	OnSync func(ntpPresentationTime float64)

	id        uuid.UUID
	log       logrus.FieldLogger
	ctx       context.Context
	ctxCancel func()
	nconn     net.Conn
	pipeline  *Pipeline
	writeErr  error

	keepaliveTimer    *time.Timer
	keepaliveInterval time.Duration

	closeError error

	// reader channels
	chunks    chan []byte
	readerErr chan error

	// in
	play         chan clientPlayReq
	pause        chan struct{}
	stop         chan struct{}
	startCapture chan clientCaptureReq
	stopCapture  chan struct{}

	// out
	done chan struct{}
}

// Start connects to the server. Playback begins when Play() is called.
func (c *Client) Start(ctx context.Context) error {
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.DialContext == nil {
		c.DialContext = (&net.Dialer{}).DialContext
	}

	c.id = uuid.New()
	c.log = c.Log.WithField("client", c.id)

	c.pipeline = &Pipeline{
		URI:            c.URI,
		Headers:        c.Headers,
		DefaultHeaders: c.DefaultHeaders,
		BasicEncodings: c.BasicEncodings,
		CaptureMaxSize: c.CaptureMaxSize,
		Log:            c.log,
		OnRequest:      c.writeRequest,
		OnMessage:      c.OnMessage,
		OnError:        c.OnError,
		OnPlay:         c.OnPlay,
		OnSync:         c.OnSync,
	}
	err := c.pipeline.Initialize()
	if err != nil {
		return err
	}

	nconn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"transport": c.Transport,
		"remote":    nconn.RemoteAddr(),
	}).Info("connected")

	c.ctx, c.ctxCancel = context.WithCancel(context.Background())
	c.nconn = nconn
	c.keepaliveTimer = emptyTimer()
	c.chunks = make(chan []byte, clientChunkQueueSize)
	c.readerErr = make(chan error, 1)
	c.play = make(chan clientPlayReq)
	c.pause = make(chan struct{})
	c.stop = make(chan struct{})
	c.startCapture = make(chan clientCaptureReq)
	c.stopCapture = make(chan struct{})
	c.done = make(chan struct{})

	go c.runReader()
	go c.run()

	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	switch c.Transport {
	case TransportTCP:
		u, err := url.Parse(c.URI)
		if err != nil {
			return nil, err
		}

		if u.Scheme != "rtsp" {
			return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
		}

		addr := u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), "554")
		}

		dialContext := c.DialContext

		if c.Proxy != "" {
			dialContext, err = proxyDialContext(c.Proxy, c.DialContext)
			if err != nil {
				return nil, err
			}
		}

		return dialContext(ctx, "tcp", addr)

	case TransportWebSocket:
		if c.WebSocketURL == "" {
			return nil, fmt.Errorf("WebSocket URL is missing")
		}
		return newClientTunnelWebSocket(ctx, c.DialContext, c.WebSocketURL)
	}

	return nil, fmt.Errorf("unsupported transport '%s'", c.Transport)
}

type netDialer func(ctx context.Context, network, address string) (net.Conn, error)

func (d netDialer) Dial(network, address string) (net.Conn, error) {
	return d(context.Background(), network, address)
}

func (d netDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d(ctx, network, address)
}

func proxyDialContext(
	proxyURL string,
	forward func(ctx context.Context, network, address string) (net.Conn, error),
) (func(ctx context.Context, network, address string) (net.Conn, error), error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	d, err := proxy.FromURL(u, netDialer(forward))
	if err != nil {
		return nil, err
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy does not support contexts")
	}

	return cd.DialContext, nil
}

// Close closes all client resources and waits for them to close.
func (c *Client) Close() error {
	c.ctxCancel()
	<-c.done
	return c.closeError
}

// Wait waits until all client resources are closed.
// This can happen when a fatal error occurs or when Close() is called.
func (c *Client) Wait() error {
	<-c.done
	return c.closeError
}

// Play starts or resumes playback. startTime is expressed in seconds.
func (c *Client) Play(startTime float64) error {
	cres := make(chan error)
	select {
	case c.play <- clientPlayReq{startTime: startTime, res: cres}:
		return <-cres

	case <-c.ctx.Done():
		return liberrors.ErrClientTerminated{}
	}
}

// Pause pauses playback.
func (c *Client) Pause() {
	select {
	case c.pause <- struct{}{}:
	case <-c.ctx.Done():
	}
}

// Stop tears down the session, without closing the connection.
func (c *Client) Stop() {
	select {
	case c.stop <- struct{}{}:
	case <-c.ctx.Done():
	}
}

// StartCapture arms a MP4 capture. onDone is called, from the client
// goroutine, when the capture ends.
func (c *Client) StartCapture(onDone func([]byte)) {
	select {
	case c.startCapture <- clientCaptureReq{onDone: onDone}:
	case <-c.ctx.Done():
	}
}

// StopCapture ends the current MP4 capture.
func (c *Client) StopCapture() {
	select {
	case c.stopCapture <- struct{}{}:
	case <-c.ctx.Done():
	}
}

func (c *Client) runReader() {
	for {
		buf := make([]byte, clientReadBufferSize)
		n, err := c.nconn.Read(buf)
		if err != nil {
			c.readerErr <- err
			return
		}

		select {
		case c.chunks <- buf[:n]:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) run() {
	defer close(c.done)

	c.closeError = c.runInner()

	c.ctxCancel()

	c.doClose()
}

func (c *Client) runInner() error {
	for {
		select {
		case chunk := <-c.chunks:
			err := c.pipeline.Write(chunk)
			if err != nil {
				return err
			}

		case req := <-c.play:
			req.res <- c.pipeline.Play(req.startTime)

		case <-c.pause:
			c.pipeline.Pause()

		case <-c.stop:
			c.pipeline.Stop()

		case req := <-c.startCapture:
			c.pipeline.StartCapture(req.onDone)

		case <-c.stopCapture:
			c.pipeline.StopCapture()

		case <-c.keepaliveTimer.C:
			c.pipeline.Keepalive()
			c.keepaliveInterval = 0

		case err := <-c.readerErr:
			if err == io.EOF {
				return fmt.Errorf("connection closed by the server")
			}
			return err

		case <-c.ctx.Done():
			return liberrors.ErrClientTerminated{}
		}

		if c.writeErr != nil {
			return c.writeErr
		}

		c.updateKeepalive()
	}
}

func (c *Client) updateKeepalive() {
	interval := c.pipeline.KeepaliveInterval()
	if interval == c.keepaliveInterval {
		return
	}

	c.keepaliveInterval = interval

	if !c.keepaliveTimer.Stop() {
		select {
		case <-c.keepaliveTimer.C:
		default:
		}
	}

	if interval != 0 {
		c.keepaliveTimer.Reset(interval)
	}
}

func (c *Client) writeRequest(req *message.RTSPRequest) {
	if c.writeErr != nil {
		return
	}

	c.nconn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)) //nolint:errcheck
	_, err := c.nconn.Write(req.Data)
	if err != nil {
		c.writeErr = err
	}
}

func (c *Client) doClose() {
	c.pipeline.StopCapture()

	if c.writeErr == nil && c.pipeline.State() != session.StateIdle {
		c.pipeline.Stop()
	}

	c.nconn.Close()
}
