package main

import (
	"os"

	"github.com/sirupsen/logrus"

	xorbitsconfig "github.com/xorbits-io/xorbits/internal/config"
)

// setupLogging configures the shared logrus singleton from a node's
// LoggingConfig. Every package in this repo logs through
// logrus.WithField("component", ...), so this is the one place formatter
// and level are decided.
func setupLogging(cfg xorbitsconfig.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "file" && cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		logrus.SetOutput(f)
	}

	return nil
}
