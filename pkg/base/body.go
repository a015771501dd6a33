package base

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	rtspMaxContentLength = 128 * 1024
)

type body []byte

func (b body) write(bb *bytes.Buffer) {
	if len(b) == 0 {
		return
	}

	bb.Write(b)
}

func contentLength(header Header) (int, error) {
	cls, ok := header["Content-Length"]
	if !ok || len(cls) == 0 {
		return 0, nil
	}

	if len(cls) > 1 {
		return 0, fmt.Errorf("Content-Length provided multiple times")
	}

	cl, err := strconv.ParseUint(strings.TrimSpace(cls[0]), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Length")
	}

	if cl > rtspMaxContentLength {
		return 0, fmt.Errorf("Content-Length exceeds %d (it's %d)",
			rtspMaxContentLength, cl)
	}

	return int(cl), nil
}

// ContentLength returns the value of the Content-Length header contained in
// a header block, without the status or request line. Lines are separated by
// LF or CRLF. It returns zero when the header is missing.
func ContentLength(head []byte) (int, error) {
	for _, line := range bytes.Split(head, []byte{'\n'}) {
		i := bytes.IndexByte(line, ':')
		if i < 0 {
			continue
		}

		if !strings.EqualFold(strings.TrimSpace(string(line[:i])), "Content-Length") {
			continue
		}

		return contentLength(Header{"Content-Length": HeaderValue{
			strings.TrimSpace(string(line[i+1:])),
		}})
	}

	return 0, nil
}
