// Package logging wires structured logging for the watchtower daemon.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config mirrors the "logging" section of AppConfig.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// DefaultConfig returns sane defaults for stand-alone use.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// New builds a *logrus.Logger from Config.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.OutputPath != "" {
		if f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, f))
		} else {
			logger.Warnf("could not open log output file %s: %v", cfg.OutputPath, err)
		}
	}

	return logger
}

// ContextualLogger wraps a *logrus.Logger with audit/chain correlation fields
// so every entry emitted through it carries the audit_id and chain_id without
// callers repeating WithFields at every call site.
type ContextualLogger struct {
	*logrus.Logger
	auditID string
	chainID uint64
}

// NewContextual wraps logger with empty context.
func NewContextual(logger *logrus.Logger) *ContextualLogger {
	return &ContextualLogger{Logger: logger}
}

// WithAudit returns a copy scoped to auditID.
func (l *ContextualLogger) WithAudit(auditID string) *ContextualLogger {
	return &ContextualLogger{Logger: l.Logger, auditID: auditID, chainID: l.chainID}
}

// WithChain returns a copy scoped to chainID.
func (l *ContextualLogger) WithChain(chainID uint64) *ContextualLogger {
	return &ContextualLogger{Logger: l.Logger, auditID: l.auditID, chainID: chainID}
}

func (l *ContextualLogger) fields() logrus.Fields {
	f := logrus.Fields{}
	if l.auditID != "" {
		f["audit_id"] = l.auditID
	}
	if l.chainID != 0 {
		f["chain_id"] = l.chainID
	}
	return f
}

func (l *ContextualLogger) Info(args ...interface{})  { l.WithFields(l.fields()).Info(args...) }
func (l *ContextualLogger) Warn(args ...interface{})  { l.WithFields(l.fields()).Warn(args...) }
func (l *ContextualLogger) Error(args ...interface{}) { l.WithFields(l.fields()).Error(args...) }
func (l *ContextualLogger) Debug(args ...interface{}) { l.WithFields(l.fields()).Debug(args...) }

func (l *ContextualLogger) Infof(format string, args ...interface{}) {
	l.WithFields(l.fields()).Infof(format, args...)
}
func (l *ContextualLogger) Warnf(format string, args ...interface{}) {
	l.WithFields(l.fields()).Warnf(format, args...)
}
func (l *ContextualLogger) Errorf(format string, args ...interface{}) {
	l.WithFields(l.fields()).Errorf(format, args...)
}
