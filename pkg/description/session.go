package description

import (
	"fmt"

	"github.com/bluenviron/mediastream/pkg/sdp"
)

// Session is the description of a RTSP stream.
type Session struct {
	// title of the stream (optional).
	Title string

	// session-level control attribute.
	Control string

	// session-level range attribute.
	Range string

	// available media streams, in SDP order.
	Medias []*Media
}

// Unmarshal decodes the description from SDP.
func (d *Session) Unmarshal(byts []byte) error {
	var sd sdp.SessionDescription
	err := sd.Unmarshal(byts)
	if err != nil {
		return err
	}

	d.Title = string(sd.SessionName)
	if d.Title == " " || d.Title == "-" {
		d.Title = ""
	}

	d.Control, _ = sd.Attribute("control")
	d.Range, _ = sd.Attribute("range")

	d.Medias = make([]*Media, len(sd.MediaDescriptions))

	for i, md := range sd.MediaDescriptions {
		var m Media
		err = m.Unmarshal(md)
		if err != nil {
			return fmt.Errorf("media %d is invalid: %w", i+1, err)
		}
		d.Medias[i] = &m
	}

	return nil
}
