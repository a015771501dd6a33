// Package liberrors contains errors returned by the library.
package liberrors

import (
	"fmt"

	"github.com/bluenviron/mediastream/pkg/base"
)

// ErrFraming is returned when the incoming byte stream cannot be
// classified as RTSP or interleaved data. It is not recoverable.
type ErrFraming struct {
	Prefix []byte
}

// Error implements the error interface.
func (e ErrFraming) Error() string {
	return fmt.Sprintf("unable to classify stream, leading bytes: %x", e.Prefix)
}

// ErrClientWrongStatusCode is returned in case of a wrong status code.
type ErrClientWrongStatusCode struct {
	Code    base.StatusCode
	Message string
}

// Error implements the error interface.
func (e ErrClientWrongStatusCode) Error() string {
	return fmt.Sprintf("wrong status code: %d (%s)", e.Code, e.Message)
}

// ErrClientCSeqMissing is returned in case the CSeq is missing.
type ErrClientCSeqMissing struct{}

// Error implements the error interface.
func (e ErrClientCSeqMissing) Error() string {
	return "CSeq is missing"
}

// ErrClientUnexpectedCSeq is returned when a response does not match any sent request.
type ErrClientUnexpectedCSeq struct {
	CSeq int
}

// Error implements the error interface.
func (e ErrClientUnexpectedCSeq) Error() string {
	return fmt.Sprintf("response with CSeq %d does not match any request", e.CSeq)
}

// ErrClientSessionHeaderInvalid is returned in case of an invalid session header.
type ErrClientSessionHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientSessionHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid session header: %v", e.Err)
}

// ErrClientNoSession is returned when a command needs a session that has not been established.
type ErrClientNoSession struct{}

// Error implements the error interface.
func (e ErrClientNoSession) Error() string {
	return "no session has been established"
}

// ErrClientTerminated is returned when the client has been closed.
type ErrClientTerminated struct{}

// Error implements the error interface.
func (e ErrClientTerminated) Error() string {
	return "terminated"
}

// ErrCodec is returned when a payload cannot be decoded.
// The affected frame is dropped and decoding continues with the next one.
type ErrCodec struct {
	Format string
	Err    error
}

// Error implements the error interface.
func (e ErrCodec) Error() string {
	return fmt.Sprintf("%s: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e ErrCodec) Unwrap() error {
	return e.Err
}
