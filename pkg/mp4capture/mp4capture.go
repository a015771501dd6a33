// Package mp4capture contains a bounded recorder of fragmented MP4 streams.
package mp4capture

import (
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream/pkg/message"
)

// DefaultMaxSize is the default capacity of a capture,
// about 5 minutes of a 6 Mbit/s stream.
const DefaultMaxSize = 225000000

// Capture records the MP4 boxes of a stream, starting from the next
// initialization segment, until it is stopped or full.
type Capture struct {
	maxSize int
	log     logrus.FieldLogger

	id        uuid.UUID
	active    bool
	capturing bool
	buf       []byte
	onDone    func([]byte)
}

// New allocates a Capture. A non-positive maxSize selects DefaultMaxSize.
func New(maxSize int, log logrus.FieldLogger) *Capture {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Capture{
		maxSize: maxSize,
		log:     log,
	}
}

// Start arms the capture. onDone is called once, with the captured bytes,
// when the capture ends. It has no effect when a capture is already active.
func (c *Capture) Start(onDone func([]byte)) {
	if c.active {
		return
	}

	c.id = uuid.New()
	c.active = true
	c.capturing = false
	c.buf = nil
	c.onDone = onDone

	c.log.WithField("capture", c.id).Debug("capture armed")
}

// Active returns whether a capture is armed or in progress.
func (c *Capture) Active() bool {
	return c.active
}

// Write records a MP4 message.
func (c *Capture) Write(msg *message.ISOM) {
	if c.active && msg.MIMEType != "" {
		c.capturing = true
	}

	if !c.capturing {
		return
	}

	if len(c.buf) < c.maxSize-len(msg.Data) {
		c.buf = append(c.buf, msg.Data...)
	} else {
		c.Stop()
	}
}

// Stop ends the capture and hands the recorded bytes to the callback.
func (c *Capture) Stop() {
	if !c.active {
		return
	}

	c.log.WithFields(logrus.Fields{
		"capture": c.id,
		"bytes":   len(c.buf),
	}).Debug("capture stopped")

	buf := c.buf
	onDone := c.onDone

	c.active = false
	c.capturing = false
	c.buf = nil
	c.onDone = nil

	if onDone != nil {
		onDone(buf)
	}
}
