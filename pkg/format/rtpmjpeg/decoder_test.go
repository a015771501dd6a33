package rtpmjpeg

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediastream/pkg/description"
	"github.com/bluenviron/mediastream/pkg/message"
)

var testMedias = []*description.Media{
	{
		Type:        description.MediaTypeVideo,
		PayloadType: 26,
		RTPMap: &description.RTPMap{
			PayloadType:  26,
			EncodingName: "JPEG",
			ClockRate:    90000,
		},
		Framesize: &description.Framesize{
			Width:  2592,
			Height: 1944,
		},
	},
}

func rtpMessage(seq uint16, marker bool, payload []byte) *message.RTP {
	return &message.RTP{
		Channel: 0,
		Packet: &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    26,
				SequenceNumber: seq,
				Timestamp:      2289528607,
				SSRC:           0x9dbb7812,
			},
			Payload: payload,
		},
	}
}

func mergeBytes(vals ...[]byte) []byte {
	return bytes.Join(vals, nil)
}

func TestMakeQuantizationTables(t *testing.T) {
	for _, ca := range []struct {
		name   string
		q      uint8
		luma   []byte
		chroma []byte
	}{
		{
			"q 50",
			50,
			[]byte{16, 11, 12, 14, 12, 10, 16, 14},
			[]byte{17, 18, 18, 24, 21, 24, 47, 26},
		},
		{
			"q 10",
			10,
			[]byte{80, 55, 60, 70, 60, 50, 80, 70},
			[]byte{85, 90, 90, 120, 105, 120, 235, 130},
		},
		{
			"q 80",
			80,
			[]byte{6, 4, 5, 6, 5, 4, 6, 6},
			[]byte{7, 7, 7, 10, 8, 10, 19, 10},
		},
		{
			"q 99",
			99,
			[]byte{1, 1, 1, 1, 1, 1, 1, 1},
			[]byte{1, 1, 1, 1, 1, 1, 1, 1},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			tables := MakeQuantizationTables(ca.q)
			require.Equal(t, ca.luma, tables[0][:8])
			require.Equal(t, ca.chroma, tables[1][:8])
		})
	}
}

func TestMakeQuantizationTablesBounds(t *testing.T) {
	for q := 0; q < 128; q++ {
		tables := MakeQuantizationTables(uint8(q))
		for _, table := range tables {
			require.Len(t, table, 64)
			for _, v := range table {
				require.GreaterOrEqual(t, v, byte(1))
			}
		}
	}

	// strongest compression saturates every coefficient
	require.Equal(t, bytes.Repeat([]byte{255}, 64), MakeQuantizationTables(1)[1])
}

func TestDecodeSingleFragment(t *testing.T) {
	d := New(testMedias, nil)

	out, err := d.Decode(rtpMessage(1, true, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x50, 0x50, 0x3c},
		[]byte{0x01, 0x02, 0x03},
	)))
	require.NoError(t, err)

	jpg := out.(*message.JPEG)
	require.Equal(t, 640, jpg.Width)
	require.Equal(t, 480, jpg.Height)
	require.Equal(t, uint8(26), jpg.PayloadType)
	require.Equal(t, uint32(2289528607), jpg.Timestamp)

	// SOI, then DQT with precision 0
	require.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xDB}, jpg.Data[:4])
	require.Equal(t, byte(0x00), jpg.Data[6]>>4)
	require.Equal(t, MakeQuantizationTables(0x50)[0], jpg.Data[7:7+64])

	require.True(t, bytes.HasSuffix(jpg.Data, []byte{0x01, 0x02, 0x03, 0xFF, 0xD9}))
	require.False(t, bytes.Contains(jpg.Data, []byte{0xFF, 0xDD}))
}

func TestDecodeFragmented(t *testing.T) {
	d := New(testMedias, nil)

	luma := bytes.Repeat([]byte{0x02}, 64)
	chroma := bytes.Repeat([]byte{0x03}, 64)

	_, err := d.Decode(rtpMessage(1, false, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0x50, 0x3c},
		[]byte{0x00, 0x00, 0x00, 0x80}, luma, chroma,
		[]byte{0x10, 0x11},
	)))
	require.Equal(t, ErrMorePacketsNeeded, err)

	out, err := d.Decode(rtpMessage(2, true, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x02, 0x01, 0xff, 0x50, 0x3c},
		[]byte{0x12, 0x13, 0xFF, 0xD9},
	)))
	require.NoError(t, err)

	jpg := out.(*message.JPEG)
	require.True(t, bytes.Contains(jpg.Data, luma))
	require.True(t, bytes.Contains(jpg.Data, chroma))
	require.True(t, bytes.HasSuffix(jpg.Data, []byte{0x10, 0x11, 0x12, 0x13, 0xFF, 0xD9}))
}

func TestDecodeDefaultSize(t *testing.T) {
	d := New(testMedias, nil)

	out, err := d.Decode(rtpMessage(1, true, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x50, 0x00, 0x00},
		[]byte{0x01},
	)))
	require.NoError(t, err)
	require.Equal(t, 2592, out.(*message.JPEG).Width)
	require.Equal(t, 1944, out.(*message.JPEG).Height)
}

func TestDecodeRestartMarker(t *testing.T) {
	d := New(testMedias, nil)

	out, err := d.Decode(rtpMessage(1, true, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x00, 0x41, 0x50, 0x50, 0x3c},
		[]byte{0x00, 0x10, 0xc0, 0x00},
		[]byte{0x01},
	)))
	require.NoError(t, err)
	require.True(t, bytes.Contains(out.(*message.JPEG).Data, []byte{0xFF, 0xDD, 0x00, 0x04, 0x00, 0x10}))
}

func TestDecodeMissingFirstFragment(t *testing.T) {
	d := New(testMedias, nil)

	_, err := d.Decode(rtpMessage(2, true, mergeBytes(
		[]byte{0x00, 0x00, 0x04, 0x00, 0x01, 0x50, 0x50, 0x3c},
		[]byte{0x01},
	)))
	require.Equal(t, ErrNoQuantizationTable, err)

	// state is reset
	_, err = d.Decode(rtpMessage(3, true, mergeBytes(
		[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x50, 0x50, 0x3c},
		[]byte{0x01},
	)))
	require.NoError(t, err)
}

func TestDecodeErrors(t *testing.T) {
	for _, ca := range []struct {
		name    string
		payload []byte
	}{
		{
			"short header",
			[]byte{0x00, 0x00, 0x00},
		},
		{
			"unsupported type",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x80, 0x50, 0x50, 0x3c},
		},
		{
			"short restart marker",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x41, 0x50, 0x50, 0x3c, 0x00},
		},
		{
			"invalid quantization table length",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0x50, 0x3c, 0x00, 0x00, 0x00, 0x20},
		},
		{
			"16-bit precision",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0x50, 0x3c, 0x00, 0x01, 0x00, 0x80},
		},
		{
			"truncated quantization table",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xff, 0x50, 0x3c, 0x00, 0x00, 0x00, 0x40, 0x01},
		},
		{
			"unknown size",
			[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x50, 0x00, 0x3c, 0x01},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			d := New(nil, nil)
			_, err := d.Decode(rtpMessage(1, true, ca.payload))
			require.Error(t, err)
		})
	}
}

func TestPayloadType(t *testing.T) {
	pt, ok := New(testMedias, nil).PayloadType()
	require.True(t, ok)
	require.Equal(t, uint8(26), pt)

	_, ok = New(nil, nil).PayloadType()
	require.False(t, ok)
}
