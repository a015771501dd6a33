package mediastream

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediastream/pkg/liberrors"
	"github.com/bluenviron/mediastream/pkg/message"
)

func readRequest(t *testing.T, br *bufio.Reader) (string, int) {
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	method := strings.Fields(line)[0]

	cseq := 0
	for {
		line, err = br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		k, v, _ := strings.Cut(line, ":")
		if k == "CSeq" {
			cseq, err = strconv.Atoi(strings.TrimSpace(v))
			require.NoError(t, err)
		}
	}

	return method, cseq
}

func TestClientTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	serverDone := make(chan struct{})

	go func() {
		defer close(serverDone)

		nconn, err2 := l.Accept()
		require.NoError(t, err2)
		defer nconn.Close()
		br := bufio.NewReader(nconn)

		for _, ca := range []struct {
			method string
			header string
			body   string
		}{
			{"OPTIONS", "", ""},
			{"DESCRIBE", "Content-Type: application/sdp\r\nContent-Base: " + testURI + "/\r\n", testSDP},
			{"SETUP", "Session: 12345678;timeout=60\r\n", ""},
			{"SETUP", "Session: 12345678;timeout=60\r\n", ""},
			{"PLAY", "Range: npt=now-\r\n", ""},
		} {
			method, cseq := readRequest(t, br)
			require.Equal(t, ca.method, method)
			_, err2 = nconn.Write(rtspResponse(cseq, ca.header, ca.body))
			require.NoError(t, err2)
		}

		_, err2 = nconn.Write(rtpFrame(t, 0, 96, 90000, []byte{0x65, 0x88, 0x84, 0x00}))
		require.NoError(t, err2)

		method, _ := readRequest(t, br)
		require.Equal(t, "TEARDOWN", method)
	}()

	received := make(chan *message.H264, 1)

	c := &Client{
		URI: "rtsp://" + l.Addr().String() + "/axis-media/media.amp",
		OnMessage: func(msg message.Message) {
			if h, ok := msg.(*message.H264); ok {
				received <- h
			}
		},
	}
	err = c.Start(context.Background())
	require.NoError(t, err)

	err = c.Play(0)
	require.NoError(t, err)

	h := <-received
	require.True(t, h.IDR)

	err = c.Close()
	require.Equal(t, liberrors.ErrClientTerminated{}, err)

	<-serverDone
}

func TestClientDialErrors(t *testing.T) {
	for _, ca := range []struct {
		name   string
		client *Client
		err    string
	}{
		{
			"scheme",
			&Client{URI: "http://localhost/stream"},
			"unsupported scheme 'http'",
		},
		{
			"transport",
			&Client{URI: "rtsp://localhost/stream", Transport: "udp"},
			"unsupported transport 'udp'",
		},
		{
			"websocket url",
			&Client{URI: "rtsp://localhost/stream", Transport: TransportWebSocket},
			"WebSocket URL is missing",
		},
		{
			"proxy",
			&Client{URI: "rtsp://localhost/stream", Proxy: "ftp://proxy"},
			"proxy: unknown scheme: ftp",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			err := ca.client.Start(context.Background())
			require.EqualError(t, err, ca.err)
		})
	}
}
