package base

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	headerMaxEntryCount  = 255
	headerMaxKeyLength   = 512
	headerMaxValueLength = 2048
)

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "rtp-info":
		return "RTP-Info"

	case "www-authenticate":
		return "WWW-Authenticate"

	case "cseq":
		return "CSeq"
	}
	return http.CanonicalHeaderKey(in)
}

// HeaderValue is an header value.
type HeaderValue []string

// Header is a RTSP header, present in both Requests and Responses.
type Header map[string]HeaderValue

// Get returns the first value associated with a key, or an empty string.
// The key is case insensitive.
func (h Header) Get(key string) string {
	v, ok := h[headerKeyNormalize(key)]
	if !ok || len(v) == 0 {
		return ""
	}
	return v[0]
}

// Has checks whether a key is present.
func (h Header) Has(key string) bool {
	_, ok := h[headerKeyNormalize(key)]
	return ok
}

// Set replaces the values associated with a key.
func (h Header) Set(key string, value string) {
	h[headerKeyNormalize(key)] = HeaderValue{value}
}

// Clone returns a deep copy of the header.
func (h Header) Clone() Header {
	ret := make(Header, len(h))
	for k, v := range h {
		ret[k] = append(HeaderValue(nil), v...)
	}
	return ret
}

// Merge copies the values of another header, replacing existing keys.
func (h Header) Merge(o Header) {
	for k, v := range o {
		h[headerKeyNormalize(k)] = append(HeaderValue(nil), v...)
	}
}

// unmarshal decodes header lines, without line terminators.
func (h *Header) unmarshal(lines []string) error {
	*h = make(Header)

	if len(lines) > headerMaxEntryCount {
		return fmt.Errorf("headers count exceeds %d", headerMaxEntryCount)
	}

	for _, line := range lines {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("invalid header line (%v)", line)
		}

		key = strings.TrimRight(key, " \t")
		if key == "" || len(key) > headerMaxKeyLength {
			return fmt.Errorf("invalid header key (%v)", key)
		}

		if len(val) > headerMaxValueLength {
			return fmt.Errorf("value of %s exceeds %d bytes", key, headerMaxValueLength)
		}

		key = headerKeyNormalize(key)
		(*h)[key] = append((*h)[key], strings.Trim(val, " \t"))
	}

	return nil
}

func (h Header) write(bb *bytes.Buffer) {
	// sort headers by key
	// in order to obtain deterministic results
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, val := range h[key] {
			bb.WriteString(key + ": " + val + "\r\n")
		}
	}

	bb.WriteString("\r\n")
}
