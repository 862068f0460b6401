package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/nite-coder/refresh-dns/pkg/config"
)

// NewLogger creates a new slog.Logger instance with the specified options.
func NewLogger(opts config.LoggingOptions) (*slog.Logger, error) {
	var writer io.Writer

	logOptions := &slog.HandlerOptions{}

	level := strings.ToLower(strings.TrimSpace(opts.Level))

	switch level {
	case "debug":
		logOptions.Level = slog.LevelDebug
	case "info", "":
		logOptions.Level = slog.LevelInfo
	case "warn":
		logOptions.Level = slog.LevelWarn
	case "error":
		logOptions.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	output := strings.TrimSpace(opts.Output)

	switch strings.ToLower(output) {
	case "":
		writer = io.Discard
	case "stderr":
		writer = os.Stderr
	case "stdout":
		// stdout only carries "<name>: <canonical>" lines
		return nil, fmt.Errorf("log output '%s' is reserved", output)
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}

		bfw := newBufferedFileWriter(file, 64*1024)
		writer = bfw

		go bfw.listenForSignals()
	}

	handler := strings.ToLower(strings.TrimSpace(opts.Handler))

	var logHandler slog.Handler

	switch handler {
	case "text", "":
		logHandler = slog.NewTextHandler(writer, logOptions)
	case "json":
		logHandler = slog.NewJSONHandler(writer, logOptions)
	default:
		return nil, fmt.Errorf("handler '%s' is not supported", handler)
	}

	return slog.New(logHandler), nil
}

// bufferedFileWriter buffers log lines for a file that can be reopened after rotation.
type bufferedFileWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func newBufferedFileWriter(file *os.File, bufferSize int) *bufferedFileWriter {
	return &bufferedFileWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
	}
}

// Write writes one log record and flushes it, refreshers log rarely.
func (bfw *bufferedFileWriter) Write(p []byte) (n int, err error) {
	bfw.mu.Lock()
	defer bfw.mu.Unlock()

	n, err = bfw.writer.Write(p)
	if err != nil {
		return n, err
	}

	return n, bfw.writer.Flush()
}

// Flush flushes the buffered writer and syncs the file to disk.
func (bfw *bufferedFileWriter) Flush() error {
	bfw.mu.Lock()
	defer bfw.mu.Unlock()

	if err := bfw.writer.Flush(); err != nil {
		return fmt.Errorf("flush buffer failed: %w", err)
	}

	if bfw.file != nil {
		if err := bfw.file.Sync(); err != nil {
			return fmt.Errorf("sync file failed: %w", err)
		}
	}

	return nil
}

// reopen closes the current file and opens the same path again.
func (bfw *bufferedFileWriter) reopen() error {
	bfw.mu.Lock()
	defer bfw.mu.Unlock()

	filePath := bfw.file.Name()

	if err := bfw.writer.Flush(); err != nil {
		return fmt.Errorf("flush error: %w", err)
	}

	if err := bfw.file.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open error: %w", err)
	}

	bfw.file = file
	bfw.writer.Reset(file)
	return nil
}

// listenForSignals reopens the log file on SIGUSR1 (logrotate postrotate).
func (bfw *bufferedFileWriter) listenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	for range sigChan {
		if err := bfw.reopen(); err != nil {
			fmt.Fprintf(os.Stderr, "refresh-dns: failed to reopen log file: %v\n", err)
		}
	}
}
