// Package base contains the primitives of the RTSP protocol.
package base

import (
	"bytes"
	"strconv"
)

const (
	rtspProtocol10 = "RTSP/1.0"
)

// Method is the method of a RTSP request.
type Method string

// methods.
const (
	Announce     Method = "ANNOUNCE"
	Describe     Method = "DESCRIBE"
	GetParameter Method = "GET_PARAMETER"
	Options      Method = "OPTIONS"
	Pause        Method = "PAUSE"
	Play         Method = "PLAY"
	Record       Method = "RECORD"
	Setup        Method = "SETUP"
	SetParameter Method = "SET_PARAMETER"
	Teardown     Method = "TEARDOWN"
)

// Request is a RTSP request.
type Request struct {
	// request method
	Method Method

	// request URI
	URI string

	// protocol token. If empty, RTSP/1.0 is used.
	Protocol string

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Marshal encodes a Request.
func (req Request) Marshal() []byte {
	proto := req.Protocol
	if proto == "" {
		proto = rtspProtocol10
	}

	var bb bytes.Buffer
	bb.WriteString(string(req.Method) + " " + req.URI + " " + proto + "\r\n")

	header := req.Header
	if len(req.Body) != 0 {
		header = header.Clone()
		header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(req.Body)), 10)}
	}

	header.write(&bb)
	body(req.Body).write(&bb)

	return bb.Bytes()
}

// CSeq returns the sequence number of the request, or zero when missing.
func (req Request) CSeq() int {
	v, err := strconv.Atoi(req.Header.Get("CSeq"))
	if err != nil {
		return 0
	}
	return v
}

// String implements fmt.Stringer.
func (req Request) String() string {
	return string(req.Marshal())
}
