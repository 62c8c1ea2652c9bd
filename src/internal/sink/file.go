// FILE: callwisp/src/internal/sink/file.go
package sink

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/format"

	"github.com/lixenwraith/log"
)

// FileSink writes formatted entries to size-rotated files
type FileSink struct {
	writer    *log.Logger // Internal logger instance for file writing
	logger    *log.Logger // Application logger
	formatter format.Formatter
	directory string
	name      string
	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.RWMutex

	counters
}

// NewFileSink creates a new file sink
func NewFileSink(opts *config.FileSinkOptions, formatter format.Formatter, logger *log.Logger) (*FileSink, error) {
	if opts == nil {
		opts = config.DefaultFileSinkOptions()
	}
	if opts.Directory == "" {
		opts.Directory = "./"
	}
	if opts.Name == "" {
		opts.Name = "callwisp"
	}

	if formatter == nil {
		var err error
		if formatter, err = format.NewFormatter(opts.Format, nil, logger); err != nil {
			return nil, err
		}
	}

	// Create configuration for the internal log writer
	writerConfig := log.DefaultConfig()
	writerConfig.Directory = opts.Directory
	writerConfig.Name = opts.Name
	writerConfig.EnableConsole = false // File only
	writerConfig.ShowTimestamp = false // Formatter output carries its own timestamp
	writerConfig.ShowLevel = false

	if opts.MaxSizeMB > 0 {
		writerConfig.MaxSizeKB = opts.MaxSizeMB * 1000
	}
	if opts.MaxTotalSizeMB >= 0 {
		writerConfig.MaxTotalSizeKB = opts.MaxTotalSizeMB * 1000
	}
	if opts.RetentionHours > 0 {
		writerConfig.RetentionPeriodHrs = opts.RetentionHours
	}
	if opts.MinDiskFreeMB > 0 {
		writerConfig.MinDiskFreeKB = opts.MinDiskFreeMB * 1000
	}

	writer := log.NewLogger()
	if err := writer.ApplyConfig(writerConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize file writer: %w", err)
	}
	if err := writer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start file writer: %w", err)
	}

	fs := &FileSink{
		writer:    writer,
		logger:    logger,
		formatter: formatter,
		directory: opts.Directory,
		name:      opts.Name,
	}
	fs.startCounters()
	return fs, nil
}

// Write formats the entry and hands it to the rotating writer
func (fs *FileSink) Write(entry *core.LogEntry) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		return nil
	}

	formatted, err := fs.formatter.Format(entry)
	if err != nil {
		fs.failed()
		if fs.logger != nil {
			fs.logger.Error("msg", "Failed to format log entry",
				"component", "file_sink",
				"error", err)
		}
		return nil
	}

	// Convert to string to prevent hex encoding of []byte by log package
	// Strip new line, writer adds it
	fs.writer.Message(string(bytes.TrimSuffix(formatted, []byte{'\n'})))
	fs.processed()
	return nil
}

// Close flushes and stops the writer
func (fs *FileSink) Close() error {
	fs.closeOnce.Do(func() {
		fs.mu.Lock()
		fs.closed = true
		fs.mu.Unlock()

		if err := fs.writer.Shutdown(2 * time.Second); err != nil {
			fs.closeErr = fmt.Errorf("file writer shutdown: %w", err)
			if fs.logger != nil {
				fs.logger.Error("msg", "Error shutting down file writer",
					"component", "file_sink",
					"error", err)
			}
		}
	})
	return fs.closeErr
}

// GetStats returns sink statistics
func (fs *FileSink) GetStats() SinkStats {
	return fs.stats("file", map[string]any{
		"directory": fs.directory,
		"name":      fs.name,
		"format":    fs.formatter.Name(),
	})
}
