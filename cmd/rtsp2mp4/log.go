package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newLogger(conf LogConfig) (*logrus.Logger, io.Closer) {
	l := logrus.New()

	switch conf.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	switch conf.Level {
	case "debug":
		level = logrus.DebugLevel
	case "warning":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	}
	l.SetLevel(level)

	if conf.File == "" {
		l.SetOutput(os.Stdout)
		return l, nil
	}

	lj := &lumberjack.Logger{
		Filename:   conf.File,
		MaxSize:    conf.MaxSize, // megabytes
		MaxBackups: conf.MaxBackups,
		Compress:   conf.Compress,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, lj))

	return l, lj
}
