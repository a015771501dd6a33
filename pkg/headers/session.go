// Package headers contains various RTSP headers.
package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediastream/pkg/base"
)

// Session is a Session header.
type Session struct {
	// session id
	Session string

	// (optional) a timeout, in seconds
	Timeout *uint
}

// Unmarshal decodes a Session header.
// Unknown parameters and malformed timeouts are ignored.
func (h *Session) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	parts := strings.Split(v[0], ";")

	h.Session = strings.TrimSpace(parts[0])
	if h.Session == "" {
		return fmt.Errorf("invalid value (%v)", v)
	}

	h.Timeout = nil

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)

		k, val, ok := strings.Cut(part, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "timeout") {
			continue
		}

		iv, err := strconv.ParseUint(strings.TrimSpace(val), 10, 32)
		if err != nil {
			continue
		}
		uiv := uint(iv)
		h.Timeout = &uiv
	}

	return nil
}
