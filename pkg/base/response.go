package base

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// StatusCode is the status code of a RTSP response.
type StatusCode int

// status codes a player can expect.
const (
	StatusOK                        StatusCode = 200
	StatusMovedPermanently          StatusCode = 301
	StatusFound                     StatusCode = 302
	StatusBadRequest                StatusCode = 400
	StatusUnauthorized              StatusCode = 401
	StatusForbidden                 StatusCode = 403
	StatusNotFound                  StatusCode = 404
	StatusMethodNotAllowed          StatusCode = 405
	StatusSessionNotFound           StatusCode = 454
	StatusMethodNotValidInThisState StatusCode = 455
	StatusInvalidRange              StatusCode = 457
	StatusUnsupportedTransport      StatusCode = 461
	StatusInternalServerError       StatusCode = 500
	StatusNotImplemented            StatusCode = 501
	StatusServiceUnavailable        StatusCode = 503
)

var statusMessages = map[StatusCode]string{
	StatusOK:                        "OK",
	StatusMovedPermanently:          "Moved Permanently",
	StatusFound:                     "Found",
	StatusBadRequest:                "Bad Request",
	StatusUnauthorized:              "Unauthorized",
	StatusForbidden:                 "Forbidden",
	StatusNotFound:                  "Not Found",
	StatusMethodNotAllowed:          "Method Not Allowed",
	StatusSessionNotFound:           "Session Not Found",
	StatusMethodNotValidInThisState: "Method Not Valid in This State",
	StatusInvalidRange:              "Invalid Range",
	StatusUnsupportedTransport:      "Unsupported Transport",
	StatusInternalServerError:       "Internal Server Error",
	StatusNotImplemented:            "Not Implemented",
	StatusServiceUnavailable:        "Service Unavailable",
}

// Response is a RTSP response.
type Response struct {
	// numeric status code
	StatusCode StatusCode

	// status message
	StatusMessage string

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// splitHead returns the position of the empty line that ends the header block
// and the length of its terminator, or -1.
func splitHead(byts []byte) (int, int) {
	crlf := bytes.Index(byts, []byte("\r\n\r\n"))
	lf := bytes.Index(byts, []byte("\n\n"))

	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	case lf >= 0:
		return lf, 2
	}
	return -1, 0
}

// Unmarshal decodes a response from a complete message.
// Lines can be terminated by CRLF or LF.
func (res *Response) Unmarshal(byts []byte) error {
	i, termLen := splitHead(byts)
	if i < 0 {
		return fmt.Errorf("header block is incomplete")
	}

	lines := strings.Split(string(byts[:i]), "\n")
	for j := range lines {
		lines[j] = strings.TrimSuffix(lines[j], "\r")
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 {
		return fmt.Errorf("invalid status line (%v)", lines[0])
	}

	if !strings.HasPrefix(parts[0], "RTSP/") {
		return fmt.Errorf("invalid protocol (%v)", parts[0])
	}

	code, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || len(parts[1]) != 3 {
		return fmt.Errorf("invalid status code (%v)", parts[1])
	}
	res.StatusCode = StatusCode(code)

	res.StatusMessage = strings.TrimSpace(parts[2])
	if res.StatusMessage == "" {
		return fmt.Errorf("empty status")
	}

	err = res.Header.unmarshal(lines[1:])
	if err != nil {
		return err
	}

	cl, err := contentLength(res.Header)
	if err != nil {
		return err
	}

	rest := byts[i+termLen:]
	if len(rest) < cl {
		return fmt.Errorf("body is shorter than Content-Length (%d < %d)", len(rest), cl)
	}

	res.Body = nil
	if cl != 0 {
		res.Body = append([]byte(nil), rest[:cl]...)
	}

	return nil
}

// Marshal encodes a response.
func (res Response) Marshal() []byte {
	if res.StatusMessage == "" {
		res.StatusMessage = statusMessages[res.StatusCode]
	}

	var bb bytes.Buffer
	bb.WriteString(rtspProtocol10 + " " + strconv.FormatInt(int64(res.StatusCode), 10) + " " + res.StatusMessage + "\r\n")

	header := res.Header
	if len(res.Body) != 0 {
		header = header.Clone()
		header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(res.Body)), 10)}
	}

	header.write(&bb)
	body(res.Body).write(&bb)

	return bb.Bytes()
}

// CSeq returns the sequence number of the response, and whether it is present and valid.
func (res Response) CSeq() (int, bool) {
	v, err := strconv.Atoi(res.Header.Get("CSeq"))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ConnectionClosed checks whether the server announced the end of the connection.
func (res Response) ConnectionClosed() bool {
	return strings.EqualFold(res.Header.Get("Connection"), "close")
}

// String implements fmt.Stringer.
func (res Response) String() string {
	return string(res.Marshal())
}
