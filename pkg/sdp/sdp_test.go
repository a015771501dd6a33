package sdp

import (
	"testing"

	psdp "github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int {
	return &v
}

func TestUnmarshal(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts string
		desc SessionDescription
	}{
		{
			"standard",
			"v=0\r\n" +
				"o=- 12188893712373216768 1 IN IP4 192.168.0.90\r\n" +
				"s=Session streamed with GStreamer\r\n" +
				"i=rtsp-server\r\n" +
				"t=0 0\r\n" +
				"a=range:npt=now-\r\n" +
				"m=video 0 RTP/AVP 96\r\n" +
				"c=IN IP4 0.0.0.0\r\n" +
				"b=AS:50000\r\n" +
				"a=rtpmap:96 H264/90000\r\n" +
				"a=recvonly\r\n",
			SessionDescription{
				Origin: psdp.Origin{
					Username:       "-",
					SessionID:      12188893712373216768,
					SessionVersion: 1,
					NetworkType:    "IN",
					AddressType:    "IP4",
					UnicastAddress: "192.168.0.90",
				},
				SessionName:        "Session streamed with GStreamer",
				SessionInformation: func() *psdp.Information { v := psdp.Information("rtsp-server"); return &v }(),
				TimeDescriptions:   []psdp.TimeDescription{{}},
				Attributes:         []psdp.Attribute{{Key: "range", Value: "npt=now-"}},
				MediaDescriptions: []*psdp.MediaDescription{{
					MediaName: psdp.MediaName{
						Media:   "video",
						Protos:  []string{"RTP", "AVP"},
						Formats: []string{"96"},
					},
					ConnectionInformation: &psdp.ConnectionInformation{
						NetworkType: "IN",
						AddressType: "IP4",
						Address:     &psdp.Address{Address: "0.0.0.0"},
					},
					Bandwidth: []psdp.Bandwidth{{Type: "AS", Bandwidth: 50000}},
					Attributes: []psdp.Attribute{
						{Key: "rtpmap", Value: "96 H264/90000"},
						{Key: "recvonly"},
					},
				}},
			},
		},
		{
			"no timing, LF terminators",
			"v=0\n" +
				"o=- 0 0 IN IP4 10.0.0.1\n" +
				"s=-\n" +
				"a=control:*\n" +
				"m=audio 0/2 RTP/AVP 0\n",
			SessionDescription{
				Origin: psdp.Origin{
					Username:       "-",
					NetworkType:    "IN",
					AddressType:    "IP4",
					UnicastAddress: "10.0.0.1",
				},
				SessionName: "-",
				Attributes:  []psdp.Attribute{{Key: "control", Value: "*"}},
				MediaDescriptions: []*psdp.MediaDescription{{
					MediaName: psdp.MediaName{
						Media:   "audio",
						Port:    psdp.RangedPort{Range: intPtr(2)},
						Protos:  []string{"RTP", "AVP"},
						Formats: []string{"0"},
					},
				}},
			},
		},
		{
			"attributes around timing",
			"v=0\r\n" +
				"o=- 0x1f 2.5 IN IPV4 10.0.0.1\r\n" +
				"s=Stream\r\n" +
				"a=tool:camera\r\n" +
				"t=now-\r\n" +
				"r=7d 1h 0 25h\r\n" +
				"a=control:*\r\n" +
				"m=application 0 RTP/AVP 107\r\n",
			SessionDescription{
				Origin: psdp.Origin{
					Username:       "-",
					SessionID:      31,
					SessionVersion: 2,
					NetworkType:    "IN",
					AddressType:    "IP4",
					UnicastAddress: "10.0.0.1",
				},
				SessionName: "Stream",
				TimeDescriptions: []psdp.TimeDescription{{
					RepeatTimes: []psdp.RepeatTime{{
						Interval: 604800,
						Duration: 3600,
						Offsets:  []int64{0, 90000},
					}},
				}},
				Attributes: []psdp.Attribute{
					{Key: "tool", Value: "camera"},
					{Key: "control", Value: "*"},
				},
				MediaDescriptions: []*psdp.MediaDescription{{
					MediaName: psdp.MediaName{
						Media:   "application",
						Protos:  []string{"RTP", "AVP"},
						Formats: []string{"107"},
					},
				}},
			},
		},
		{
			"truncated origin and connection",
			"v=0\r\n" +
				"o=-0 IN\r\n" +
				"s=\r\n" +
				"c=IN\r\n" +
				"t=0 0\r\n" +
				"m=video 554 RTP/AVP 26\r\n" +
				"c=IN c=IN IP4 0.0.0.0\r\n",
			SessionDescription{
				Origin: psdp.Origin{
					Username:    "-",
					NetworkType: "IN",
					AddressType: "IP4",
				},
				TimeDescriptions: []psdp.TimeDescription{{}},
				MediaDescriptions: []*psdp.MediaDescription{{
					MediaName: psdp.MediaName{
						Media:   "video",
						Port:    psdp.RangedPort{Value: 554},
						Protos:  []string{"RTP", "AVP"},
						Formats: []string{"26"},
					},
					ConnectionInformation: &psdp.ConnectionInformation{
						NetworkType: "IN",
						AddressType: "IP4",
						Address:     &psdp.Address{Address: "0.0.0.0"},
					},
				}},
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var desc SessionDescription
			err := desc.Unmarshal([]byte(ca.byts))
			require.NoError(t, err)
			require.Equal(t, ca.desc, desc)
		})
	}
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts string
		err  string
	}{
		{
			"invalid line",
			"v=0\r\nxyz\r\n",
			"invalid line (xyz)",
		},
		{
			"unsupported version",
			"v=2\r\n",
			"unsupported version (2)",
		},
		{
			"invalid key",
			"v=0\r\nx=1\r\n",
			"invalid key (x)",
		},
		{
			"invalid media key",
			"v=0\r\nm=video 0 RTP/AVP 96\r\nt=0 0\r\n",
			"invalid key (t)",
		},
		{
			"repeat without timing",
			"v=0\r\nr=7d 1h 0\r\n",
			"invalid key (r)",
		},
		{
			"invalid timing",
			"v=0\r\nt=0\r\n",
			"sdp: invalid syntax (t=0)",
		},
		{
			"invalid origin",
			"v=0\r\no=- abc.z 1 IN IP4 127.0.0.1\r\n",
			"sdp: invalid numeric value (abc.z)",
		},
		{
			"invalid bandwidth",
			"v=0\r\nb=AS\r\n",
			"sdp: invalid syntax (b=AS)",
		},
		{
			"invalid port",
			"v=0\r\nm=video abc RTP/AVP 96\r\n",
			"invalid port (abc)",
		},
		{
			"invalid connection",
			"v=0\r\nc=XX IP4 0.0.0.0\r\n",
			"sdp: invalid syntax (c=XX IP4 0.0.0.0)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var desc SessionDescription
			err := desc.Unmarshal([]byte(ca.byts))
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestAttribute(t *testing.T) {
	var desc SessionDescription
	err := desc.Unmarshal([]byte("v=0\r\na=control:*\r\na=recvonly\r\n"))
	require.NoError(t, err)

	v, ok := desc.Attribute("control")
	require.True(t, ok)
	require.Equal(t, "*", v)

	_, ok = desc.Attribute("range")
	require.False(t, ok)
}

func FuzzUnmarshal(f *testing.F) {
	f.Add([]byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=video 0 RTP/AVP 96\r\na=rtpmap:96 H264/90000\r\n"))
	f.Add([]byte("v=0\nt=now-\nr=7d 1h 0\n"))
	f.Add([]byte("o=-0 IN\nc=IN\nz=2882844526 -1h\n"))

	f.Fuzz(func(_ *testing.T, b []byte) {
		var desc SessionDescription
		desc.Unmarshal(b) //nolint:errcheck
	})
}
