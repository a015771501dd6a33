// Package main contains rtsp2mp4, a tool that reads a RTSP stream and
// stores it as fragmented MP4.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediastream"
	"github.com/bluenviron/mediastream/pkg/headers"
	"github.com/bluenviron/mediastream/pkg/message"
)

func main() {
	confPath := flag.String("config", "rtsp2mp4.yml", "path of the configuration file")
	uri := flag.String("uri", "", "URI of the stream, overrides the one in the configuration file")
	flag.Parse()

	err := run(*confPath, *uri)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err)
		os.Exit(1)
	}
}

func run(confPath string, uri string) error {
	conf, err := Load(confPath, uri)
	if err != nil {
		return err
	}

	log, logCloser := newLogger(conf.Log)
	if logCloser != nil {
		defer logCloser.Close()
	}

	f, err := os.Create(conf.Output)
	if err != nil {
		return err
	}
	defer f.Close()

	var writeErr error

	c := &mediastream.Client{
		URI:            conf.URI,
		Transport:      mediastream.Transport(conf.Transport),
		WebSocketURL:   conf.WebSocketURL,
		Proxy:          conf.Proxy,
		Headers:        conf.RequestHeaders(),
		CaptureMaxSize: conf.Capture.MaxSize,
		Log:            log,
		OnMessage: func(msg message.Message) {
			isom, ok := msg.(*message.ISOM)
			if !ok || writeErr != nil {
				return
			}

			if isom.MIMEType != "" {
				log.WithField("mimeType", isom.MIMEType).Info("MP4 stream initialized")
			}

			_, writeErr = f.Write(isom.Data)
			if writeErr != nil {
				log.WithError(writeErr).Error("unable to write MP4 data")
			}
		},
		OnError: func(err error) {
			log.WithError(err).Error("RTSP error")
		},
		OnPlay: func(ra *headers.Range) {
			if ra != nil {
				log.WithField("range", ra.Marshal()[0]).Info("playing")
			} else {
				log.Info("playing")
			}
		},
		OnSync: func(ntp float64) {
			log.WithField("ntpPresentationTime", ntp).Info("presentation time synchronized")
		},
	}

	ctx, ctxCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer ctxCancel()

	err = c.Start(ctx)
	if err != nil {
		return err
	}

	if conf.Capture.Output != "" {
		c.StartCapture(func(buf []byte) {
			err := os.WriteFile(conf.Capture.Output, buf, 0o644)
			if err != nil {
				log.WithError(err).Error("unable to save capture")
				return
			}
			log.WithFields(logrus.Fields{
				"file":  conf.Capture.Output,
				"bytes": len(buf),
			}).Info("capture saved")
		})
	}

	err = c.Play(conf.StartTime)
	if err != nil {
		c.Close() //nolint:errcheck
		return err
	}

	go func() {
		<-ctx.Done()
		c.Close() //nolint:errcheck
	}()

	err = c.Wait()
	if ctx.Err() != nil {
		log.Info("terminated")
		return nil
	}

	return err
}
