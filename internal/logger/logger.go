// Copyright 2026 The sshmount Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger wraps log/slog with the five-level severity scheme
// (TRACE, DEBUG, INFO, WARNING, ERROR) and text/json handler choice the
// rest of the ambient stack expects, instead of slog's default three
// levels.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Custom levels. slog only defines Debug/Info/Warn/Error; Trace sits
// below Debug the same distance Debug sits below Info.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// levelOff is above any real message, so nothing below it logs.
	levelOff = slog.Level(16)
)

// Severity string values accepted by configuration, matching the FUSE
// mount's --log-severity flag.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type factory struct {
	format string // "text" or "json"
}

var defaultLoggerFactory = &factory{format: "text"}
var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, new(slog.LevelVar), ""))

// createJsonOrTextHandler builds a slog.Handler that renames the "level"
// attribute to "severity" and spells out the custom level names, writing
// either logfmt-style text or one JSON object per line.
func (f *factory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl, _ := a.Value.Any().(slog.Level)
				name, ok := levelNames[lvl]
				if !ok {
					name = lvl.String()
				}
				return slog.String("severity", name)
			case slog.MessageKey:
				return slog.String(slog.MessageKey, prefix+a.Value.String())
			case slog.TimeKey:
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// setLoggingLevel maps a configured severity string onto level, the var
// driving the handler's filtering. An unrecognized severity is treated as
// INFO.
func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch severity {
	case TRACE:
		level.Set(LevelTrace)
	case DEBUG:
		level.Set(LevelDebug)
	case INFO:
		level.Set(LevelInfo)
	case WARNING:
		level.Set(LevelWarn)
	case ERROR:
		level.Set(LevelError)
	case OFF:
		level.Set(levelOff)
	default:
		level.Set(LevelInfo)
	}
}

// Init replaces the package-level default logger, directing output at w
// (or os.Stderr if w is nil) formatted per format ("text" or "json") and
// filtered to severity.
func Init(w io.Writer, format, severity string) error {
	if w == nil {
		w = os.Stderr
	}
	defaultLoggerFactory.format = format

	level := new(slog.LevelVar)
	setLoggingLevel(severity, level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, level, ""))
	return nil
}

// InitFile opens path for appending (creating it if needed) and directs
// logging there; an empty path directs logging to os.Stderr.
func InitFile(path, format, severity string) error {
	if path == "" {
		return Init(nil, format, severity)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logger: opening log file %q: %w", path, err)
	}
	return Init(f, format, severity)
}

// Default returns the current package-level logger, for components (like
// FsBridge) that want a *slog.Logger handle instead of the Tracef/Debugf/
// ... package functions.
func Default() *slog.Logger { return defaultLogger }

func Tracef(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, args...))
}
