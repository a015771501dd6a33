package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediastream/pkg/base"
)

// TransportProtocol is a transport protocol.
type TransportProtocol int

// transport protocols.
const (
	TransportProtocolUDP TransportProtocol = iota
	TransportProtocolTCP
)

// Transport is a Transport header.
// Only what is needed to negotiate unicast interleaved playback is handled.
type Transport struct {
	// protocol of the transport
	Protocol TransportProtocol

	// whether the delivery is unicast
	Unicast bool

	// (optional) interleaved frame ids
	InterleavedIDs *[2]int
}

func parsePorts(val string) (*[2]int, error) {
	ports := strings.Split(val, "-")
	if len(ports) == 2 {
		port1, err := strconv.ParseUint(ports[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		port2, err := strconv.ParseUint(ports[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port2)}, nil
	}

	if len(ports) == 1 {
		port1, err := strconv.ParseUint(ports[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port1 + 1)}, nil
	}

	return nil, fmt.Errorf("invalid ports (%v)", val)
}

// Unmarshal decodes a Transport header.
func (h *Transport) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	*h = Transport{}

	parts := strings.Split(v[0], ";")

	switch strings.ToUpper(parts[0]) {
	case "RTP/AVP", "RTP/AVP/UDP":
		h.Protocol = TransportProtocolUDP

	case "RTP/AVP/TCP":
		h.Protocol = TransportProtocolTCP

	default:
		return fmt.Errorf("invalid protocol (%v)", v[0])
	}

	for _, part := range parts[1:] {
		k, val, _ := strings.Cut(part, "=")

		switch k {
		case "unicast":
			h.Unicast = true

		case "interleaved":
			ports, err := parsePorts(val)
			if err != nil {
				return err
			}
			h.InterleavedIDs = ports
		}
	}

	return nil
}

// Marshal encodes a Transport header.
func (h Transport) Marshal() base.HeaderValue {
	var rets []string

	if h.Protocol == TransportProtocolTCP {
		rets = append(rets, "RTP/AVP/TCP")
	} else {
		rets = append(rets, "RTP/AVP")
	}

	if h.Unicast {
		rets = append(rets, "unicast")
	}

	if h.InterleavedIDs != nil {
		rets = append(rets, "interleaved="+strconv.FormatInt(int64(h.InterleavedIDs[0]), 10)+
			"-"+strconv.FormatInt(int64(h.InterleavedIDs[1]), 10))
	}

	return base.HeaderValue{strings.Join(rets, ";")}
}
