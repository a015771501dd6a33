package mediastream

import (
	"strconv"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
	"github.com/bluenviron/mediastream/pkg/rtcpreport"
)

const testURI = "rtsp://192.168.0.90/axis-media/media.amp"

var testSDP = "v=0\r\n" +
	"o=- 12188893712373216768 1 IN IP4 192.168.0.90\r\n" +
	"s=Session streamed with GStreamer\r\n" +
	"t=0 0\r\n" +
	"a=control:rtsp://192.168.0.90/axis-media/media.amp\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1;profile-level-id=4d0029;sprop-parameter-sets=Z00AKeKQDwBE/LgLcBAQGkHiRFQ=,aO48gA==\r\n" +
	"a=control:stream=0\r\n" +
	"a=framerate:25.000000\r\n" +
	"m=audio 0 RTP/AVP 97\r\n" +
	"a=rtpmap:97 MPEG4-GENERIC/16000/1\r\n" +
	"a=fmtp:97 streamtype=5;profile-level-id=2;mode=AAC-hbr;config=1408;sizelength=13;indexlength=3;indexdeltalength=3\r\n" +
	"a=control:stream=1\r\n"

func rtspResponse(cseq int, h string, body string) []byte {
	ret := "RTSP/1.0 200 OK\r\n" +
		"CSeq: " + strconv.Itoa(cseq) + "\r\n" +
		h
	if body != "" {
		ret += "Content-Length: " + strconv.Itoa(len(body)) + "\r\n"
	}
	return []byte(ret + "\r\n" + body)
}

func interleaved(channel uint8, pkt []byte) []byte {
	return append([]byte{0x24, channel, byte(len(pkt) >> 8), byte(len(pkt))}, pkt...)
}

func rtpFrame(t *testing.T, channel uint8, pt uint8, ts uint32, payload []byte) []byte {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    pt,
			SequenceNumber: 1000,
			Timestamp:      ts,
			SSRC:           0x9dbb7812,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	require.NoError(t, err)
	return interleaved(channel, buf)
}

func srFrame(t *testing.T, channel uint8, ts uint32) []byte {
	buf, err := rtcp.Marshal([]rtcp.Packet{
		&rtcp.SenderReport{
			SSRC:    0x9dbb7812,
			NTPTime: uint64(3668306118)<<32 | 445534137,
			RTPTime: ts,
		},
	})
	require.NoError(t, err)
	return interleaved(channel, buf)
}

type pipelineRecorder struct {
	reqs  []*base.Request
	msgs  []message.Message
	syncs []float64
}

func (r *pipelineRecorder) types() []message.Type {
	ret := make([]message.Type, len(r.msgs))
	for i, msg := range r.msgs {
		ret[i] = msg.Type()
	}
	r.msgs = nil
	return ret
}

func newTestPipeline(t *testing.T) (*Pipeline, *pipelineRecorder) {
	rec := &pipelineRecorder{}

	p := &Pipeline{
		URI: testURI,
		OnRequest: func(req *message.RTSPRequest) {
			require.Equal(t, req.Request.Marshal(), req.Data)
			rec.reqs = append(rec.reqs, req.Request)
		},
		OnMessage: func(msg message.Message) {
			rec.msgs = append(rec.msgs, msg)
		},
		OnSync: func(v float64) {
			rec.syncs = append(rec.syncs, v)
		},
	}
	err := p.Initialize()
	require.NoError(t, err)

	return p, rec
}

func startPlayback(t *testing.T, p *Pipeline, rec *pipelineRecorder) {
	err := p.Play(0)
	require.NoError(t, err)
	require.Equal(t, base.Options, rec.reqs[0].Method)

	err = p.Write(rtspResponse(1, "Public: OPTIONS, DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN\r\n", ""))
	require.NoError(t, err)
	require.Equal(t, base.Describe, rec.reqs[1].Method)
	require.Equal(t, []message.Type{message.TypeRTSPResponse}, rec.types())

	err = p.Write(rtspResponse(2,
		"Content-Type: application/sdp\r\n"+
			"Content-Base: "+testURI+"/\r\n",
		testSDP))
	require.NoError(t, err)
	require.Equal(t, []message.Type{message.TypeRTSPResponse, message.TypeSDP, message.TypeISOM}, rec.types())
	require.Equal(t, base.Setup, rec.reqs[2].Method)
	require.Equal(t, testURI+"/stream=0", rec.reqs[2].URI)

	err = p.Write(rtspResponse(3, "Session: 12345678;timeout=60\r\n", ""))
	require.NoError(t, err)
	require.Equal(t, base.Setup, rec.reqs[3].Method)
	require.Equal(t, "RTP/AVP/TCP;unicast;interleaved=2-3", rec.reqs[3].Header.Get("Transport"))

	err = p.Write(rtspResponse(4, "Session: 12345678;timeout=60\r\n", ""))
	require.NoError(t, err)
	require.Equal(t, base.Play, rec.reqs[4].Method)

	err = p.Write(rtspResponse(5, "Range: npt=now-\r\n", ""))
	require.NoError(t, err)
	require.Len(t, rec.reqs, 5)
	rec.types()
}

func TestPipelinePlayback(t *testing.T) {
	p, rec := newTestPipeline(t)
	startPlayback(t, p, rec)

	require.Len(t, p.Tracks(), 2)

	idr := []byte{0x65, 0x88, 0x84, 0x00}

	err := p.Write(rtpFrame(t, 0, 96, 90000, idr))
	require.NoError(t, err)
	require.Equal(t, []message.Type{message.TypeRTP, message.TypeH264, message.TypeISOM}, rec.types())
	require.Empty(t, rec.syncs)

	err = p.Write(append(srFrame(t, 1, 90000), rtpFrame(t, 0, 96, 93600, idr)...))
	require.NoError(t, err)

	require.Len(t, rec.msgs, 4)
	rtpMsg := rec.msgs[1].(*message.RTP)
	require.NotNil(t, rtpMsg.NTPTimestamp)
	h264Msg := rec.msgs[2].(*message.H264)
	require.Equal(t, append([]byte{0, 0, 0, 4}, idr...), h264Msg.Data)
	require.True(t, h264Msg.IDR)
	require.Equal(t, rtpMsg.NTPTimestamp, h264Msg.NTPTimestamp)
	isom := rec.msgs[3].(*message.ISOM)
	require.Equal(t, []string{"moof", "mdat"}, isom.Boxes)
	require.NotNil(t, isom.CheckpointTime)
	require.Len(t, rec.syncs, 1)
	rec.types()

	// untracked payload types are dropped silently
	err = p.Write(rtpFrame(t, 4, 110, 1000, []byte{1, 2, 3}))
	require.NoError(t, err)
	require.Equal(t, []message.Type{message.TypeRTP}, rec.types())
}

func TestPipelineCapture(t *testing.T) {
	p, rec := newTestPipeline(t)

	var captured []byte
	p.StartCapture(func(buf []byte) {
		captured = buf
	})

	startPlayback(t, p, rec)

	err := p.Write(rtpFrame(t, 0, 96, 90000, []byte{0x65, 0x88, 0x84, 0x00}))
	require.NoError(t, err)

	var expected []byte
	for _, msg := range rec.msgs {
		if isom, ok := msg.(*message.ISOM); ok {
			expected = append(expected, isom.Data...)
		}
	}

	p.StopCapture()
	require.NotEmpty(t, captured)
	require.Equal(t, expected, captured[len(captured)-len(expected):])
	require.Equal(t, "ftyp", string(captured[4:8]))
}

func TestPipelineErrors(t *testing.T) {
	p, rec := newTestPipeline(t)

	var errs []error
	p.OnError = func(err error) {
		errs = append(errs, err)
	}
	err := p.Reset()
	require.NoError(t, err)

	err = p.Play(0)
	require.NoError(t, err)

	err = p.Write([]byte("RTSP/1.0 404 Not Found\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, []error{liberrors.ErrClientWrongStatusCode{
		Code:    base.StatusNotFound,
		Message: "Not Found",
	}}, errs)
	require.Len(t, rec.reqs, 2)

	err = p.Write([]byte("GARBAGE!"))
	var ferr liberrors.ErrFraming
	require.ErrorAs(t, err, &ferr)

	err = p.Reset()
	require.NoError(t, err)

	err = p.Write(rtspResponse(1, "", ""))
	require.NoError(t, err)
}

func TestPipelineUnknownRTCP(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var msgs []message.Message
	p := &Pipeline{
		URI: testURI,
		Log: logger,
		OnMessage: func(msg message.Message) {
			msgs = append(msgs, msg)
		},
	}
	err := p.Initialize()
	require.NoError(t, err)

	// extended report, padded to 12 bytes
	err = p.Write(interleaved(1, []byte{
		0xa0, 0xcf, 0x00, 0x02,
		0x01, 0x02, 0x03, 0x04,
		0xaa, 0x00, 0x00, 0x03,
	}))
	require.NoError(t, err)

	require.Len(t, msgs, 1)
	rec := msgs[0].(*message.RTCP).Record.(*rtcpreport.Unknown)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0xaa}, rec.Data)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.DebugLevel, entry.Level)
	require.Equal(t, "unsupported RTCP packet", entry.Message)
	require.Equal(t, uint8(1), entry.Data["channel"])
	require.Equal(t, uint8(207), entry.Data["packetType"])
}
