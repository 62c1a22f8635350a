// Package utils provides utility functions and types for dotsync.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every complete line with a
// sequence number and a timestamp before forwarding it to the target.
// Incomplete lines are held back until their newline arrives or Close is called.
type LogInterceptor struct {
	target io.Writer
	seq    uint64
	buf    bytes.Buffer
	mu     sync.Mutex
	now    func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{
		target: target,
		now:    time.Now,
	}
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	prefix := slog.Uint64("line", i.seq).String() + " " +
		slog.String("time", i.now().Format(time.RFC3339)).String() + " "
	if _, err := io.WriteString(i.target, prefix); err != nil {
		return err
	}
	if _, err := i.target.Write(line); err != nil {
		return err
	}
	_, err := io.WriteString(i.target, "\n")
	return err
}

// Write implements io.Writer. It reports len(p) on success since the caller's
// bytes are fully accepted, even when part of them is still buffered.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.buf.Write(p)
	for {
		data := i.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(data[:idx], []byte{'\r'})
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
		i.buf.Next(idx + 1)
	}
	return len(p), nil
}

// Close flushes any buffered partial line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.buf.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), i.buf.Bytes()...)
	i.buf.Reset()
	return i.writeLine(line)
}
