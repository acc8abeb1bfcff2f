package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Pinger is implemented by the backend client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingOptions defines the flags for the ping command.
type PingOptions struct {
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

// PingCommand checks that the registration backend answers.
func PingCommand(ctx context.Context, backend Pinger, opts PingOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := backend.Ping(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ping: backend unavailable: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "backend ok (%s)\n", time.Since(start).Round(time.Millisecond))
	return 0
}
