// Package sdp contains a SDP decoder that tolerates the deviations
// of RTSP servers embedded in cameras.
package sdp

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

var (
	errInvalidSyntax       = errors.New("sdp: invalid syntax")
	errInvalidNumericValue = errors.New("sdp: invalid numeric value")
)

// SessionDescription is a SDP session description.
type SessionDescription psdp.SessionDescription

// Attribute returns the value of a session-level attribute and whether it exists.
func (s *SessionDescription) Attribute(key string) (string, bool) {
	return (*psdp.SessionDescription)(s).Attribute(key)
}

type unmarshalState int

const (
	stateSession unmarshalState = iota
	stateTiming
	stateMedia
)

// Unmarshal decodes a SessionDescription.
// Lines can be terminated by LF or CRLF, the timing line is optional
// and session-level lines are accepted in any order.
func (s *SessionDescription) Unmarshal(byts []byte) error {
	state := stateSession

	for _, line := range strings.Split(string(byts), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if len(line) < 2 || line[1] != '=' {
			return fmt.Errorf("invalid line (%s)", line)
		}

		key, val := line[0], line[2:]

		var err error

		switch state {
		case stateSession:
			err = s.unmarshalSessionLine(&state, key, val)

		case stateTiming:
			if key == 'r' {
				err = s.unmarshalRepeatTimes(val)
			} else {
				state = stateSession
				err = s.unmarshalSessionLine(&state, key, val)
			}

		case stateMedia:
			err = s.unmarshalMediaLine(key, val)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (s *SessionDescription) unmarshalSessionLine(state *unmarshalState, key byte, val string) error {
	switch key {
	case 'v':
		if strings.TrimSpace(val) != "0" {
			return fmt.Errorf("unsupported version (%s)", val)
		}
		s.Version = 0

	case 'o':
		return s.unmarshalOrigin(val)

	case 's':
		s.SessionName = psdp.SessionName(val)

	case 'i':
		info := psdp.Information(val)
		s.SessionInformation = &info

	case 'u':
		// some servers put a relative path here
		if u, err := url.Parse(val); err == nil {
			s.URI = u
		}

	case 'e':
		email := psdp.EmailAddress(val)
		s.EmailAddress = &email

	case 'p':
		phone := psdp.PhoneNumber(val)
		s.PhoneNumber = &phone

	case 'c':
		ci, err := unmarshalConnectionInformation(val)
		if err != nil {
			return err
		}
		s.ConnectionInformation = ci

	case 'b':
		bw, err := unmarshalBandwidth(val)
		if err != nil {
			return err
		}
		s.Bandwidth = append(s.Bandwidth, *bw)

	case 'z':
		return s.unmarshalTimeZones(val)

	case 'k':
		ek := psdp.EncryptionKey(val)
		s.EncryptionKey = &ek

	case 'a':
		s.Attributes = append(s.Attributes, unmarshalAttribute(val))

	case 't':
		err := s.unmarshalTiming(val)
		if err != nil {
			return err
		}
		*state = stateTiming

	case 'm':
		err := s.unmarshalMediaName(val)
		if err != nil {
			return err
		}
		*state = stateMedia

	default:
		return fmt.Errorf("invalid key (%c)", key)
	}

	return nil
}

func (s *SessionDescription) unmarshalMediaLine(key byte, val string) error {
	md := s.MediaDescriptions[len(s.MediaDescriptions)-1]

	switch key {
	case 'm':
		return s.unmarshalMediaName(val)

	case 'i':
		title := psdp.Information(val)
		md.MediaTitle = &title

	case 'c':
		ci, err := unmarshalConnectionInformation(val)
		if err != nil {
			return err
		}
		md.ConnectionInformation = ci

	case 'b':
		bw, err := unmarshalBandwidth(val)
		if err != nil {
			return err
		}
		md.Bandwidth = append(md.Bandwidth, *bw)

	case 'k':
		ek := psdp.EncryptionKey(val)
		md.EncryptionKey = &ek

	case 'a':
		md.Attributes = append(md.Attributes, unmarshalAttribute(val))

	default:
		return fmt.Errorf("invalid key (%c)", key)
	}

	return nil
}

func unmarshalAttribute(val string) psdp.Attribute {
	k, v, ok := strings.Cut(val, ":")
	if !ok || k == "" {
		return psdp.NewPropertyAttribute(val)
	}
	return psdp.NewAttribute(k, v)
}

// parseID parses session IDs and versions, that some servers
// encode in hexadecimal, with a sign or with a fractional part.
func parseID(v string) (uint64, error) {
	if h, ok := strings.CutPrefix(strings.ToLower(v), "0x"); ok {
		return strconv.ParseUint(h, 16, 64)
	}

	if strings.ContainsAny(v, "abcdefABCDEF") {
		return strconv.ParseUint(v, 16, 64)
	}

	v, _, _ = strings.Cut(v, ".")
	v = strings.TrimPrefix(v, "-")
	if v == "" {
		return 0, nil
	}

	return strconv.ParseUint(v, 10, 64)
}

func (s *SessionDescription) unmarshalOrigin(val string) error {
	val = strings.Replace(val, " IN IPV4 ", " IN IP4 ", 1)
	fields := strings.Fields(val)

	// network type and address are often missing or truncated
	i := len(fields)
	for j, f := range fields {
		if f == "IN" {
			i = j
			break
		}
	}

	if i < len(fields) {
		s.Origin.NetworkType = "IN"
		s.Origin.AddressType = "IP4"
		if i+1 < len(fields) {
			s.Origin.AddressType = fields[i+1]
		}
		if i+2 < len(fields) {
			s.Origin.UnicastAddress = fields[i+2]
		}
	}

	head := fields[:i]
	if len(head) == 1 && head[0] == "-0" {
		head = []string{"-", "0", "0"}
	}

	if len(head) == 0 {
		return fmt.Errorf("%w (o=%s)", errInvalidSyntax, val)
	}

	var err error
	s.Origin.SessionVersion, err = parseID(head[len(head)-1])
	if err != nil {
		return fmt.Errorf("%w (%s)", errInvalidNumericValue, head[len(head)-1])
	}

	if len(head) >= 2 {
		s.Origin.SessionID, err = parseID(head[len(head)-2])
		if err != nil {
			return fmt.Errorf("%w (%s)", errInvalidNumericValue, head[len(head)-2])
		}
		s.Origin.Username = strings.Join(head[:len(head)-2], " ")
	}

	return nil
}

func unmarshalConnectionInformation(val string) (*psdp.ConnectionInformation, error) {
	val = strings.TrimPrefix(val, "IN c=")
	fields := strings.Fields(strings.Replace(val, "IN IPV4", "IN IP4", 1))

	switch {
	case len(fields) == 1 && fields[0] == "IN":
		return nil, nil

	case len(fields) >= 2 && strings.EqualFold(fields[0], "IN") &&
		(fields[1] == "IP4" || fields[1] == "IP6"):

	default:
		return nil, fmt.Errorf("%w (c=%s)", errInvalidSyntax, val)
	}

	addr := &psdp.Address{}
	if len(fields) > 2 {
		addr.Address = fields[2]
	}

	return &psdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: fields[1],
		Address:     addr,
	}, nil
}

func unmarshalBandwidth(val string) (*psdp.Bandwidth, error) {
	typ, v, ok := strings.Cut(val, ":")
	if !ok {
		return nil, fmt.Errorf("%w (b=%s)", errInvalidSyntax, val)
	}

	bw := &psdp.Bandwidth{Type: typ}
	if t, ok := strings.CutPrefix(typ, "X-"); ok {
		bw.Experimental = true
		bw.Type = t
	}

	var err error
	bw.Bandwidth, err = strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", errInvalidNumericValue, v)
	}

	return bw, nil
}

func (s *SessionDescription) unmarshalTiming(val string) error {
	// FLIR cameras
	if val == "now-" {
		val = "0 0"
	}

	fields := strings.Fields(val)
	if len(fields) < 2 {
		return fmt.Errorf("%w (t=%s)", errInvalidSyntax, val)
	}

	var td psdp.TimeDescription
	var err error

	td.Timing.StartTime, err = strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w (%s)", errInvalidNumericValue, fields[0])
	}

	td.Timing.StopTime, err = strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w (%s)", errInvalidNumericValue, fields[1])
	}

	s.TimeDescriptions = append(s.TimeDescriptions, td)
	return nil
}

var timeUnits = map[byte]int64{
	'd': 86400,
	'h': 3600,
	'm': 60,
	's': 1,
}

func parseTimeUnits(v string) (int64, error) {
	mul := int64(1)
	if len(v) > 0 {
		if m, ok := timeUnits[v[len(v)-1]]; ok {
			mul = m
			v = v[:len(v)-1]
		}
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w (%s)", errInvalidNumericValue, v)
	}

	return n * mul, nil
}

func (s *SessionDescription) unmarshalRepeatTimes(val string) error {
	fields := strings.Fields(val)
	if len(fields) < 3 {
		return fmt.Errorf("%w (r=%s)", errInvalidSyntax, val)
	}

	var rt psdp.RepeatTime
	var err error

	rt.Interval, err = parseTimeUnits(fields[0])
	if err != nil {
		return err
	}

	rt.Duration, err = parseTimeUnits(fields[1])
	if err != nil {
		return err
	}

	for _, f := range fields[2:] {
		offset, err := parseTimeUnits(f)
		if err != nil {
			return err
		}
		rt.Offsets = append(rt.Offsets, offset)
	}

	td := &s.TimeDescriptions[len(s.TimeDescriptions)-1]
	td.RepeatTimes = append(td.RepeatTimes, rt)
	return nil
}

func (s *SessionDescription) unmarshalTimeZones(val string) error {
	fields := strings.Fields(val)
	if len(fields)%2 != 0 {
		return fmt.Errorf("%w (z=%s)", errInvalidSyntax, val)
	}

	for i := 0; i < len(fields); i += 2 {
		var tz psdp.TimeZone
		var err error

		tz.AdjustmentTime, err = strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return fmt.Errorf("%w (%s)", errInvalidNumericValue, fields[i])
		}

		tz.Offset, err = parseTimeUnits(fields[i+1])
		if err != nil {
			return err
		}

		s.TimeZones = append(s.TimeZones, tz)
	}

	return nil
}

func (s *SessionDescription) unmarshalMediaName(val string) error {
	fields := strings.Fields(val)
	if len(fields) < 3 {
		return fmt.Errorf("%w (m=%s)", errInvalidSyntax, val)
	}

	md := &psdp.MediaDescription{}
	md.MediaName.Media = fields[0]

	port, rng, hasRange := strings.Cut(fields[1], "/")

	var err error
	md.MediaName.Port.Value, err = strconv.Atoi(port)
	if err != nil || md.MediaName.Port.Value < 0 || md.MediaName.Port.Value > 65535 {
		return fmt.Errorf("invalid port (%s)", fields[1])
	}

	if hasRange {
		n, err := strconv.Atoi(rng)
		if err != nil {
			return fmt.Errorf("invalid port (%s)", fields[1])
		}
		md.MediaName.Port.Range = &n
	}

	md.MediaName.Protos = strings.Split(fields[2], "/")
	md.MediaName.Formats = fields[3:]

	s.MediaDescriptions = append(s.MediaDescriptions, md)
	return nil
}
