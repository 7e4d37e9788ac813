package mediarelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/pscheid92/livechat/internal/adapter/metrics"
)

// Launcher runs the external RTMP/HLS relay as a child process. Failures are
// logged and reported but never stop the web server.
type Launcher struct {
	args    []string
	metrics *metrics.MediaMetrics

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewLauncher creates a launcher for the given command line. m may be nil.
func NewLauncher(args []string, m *metrics.MediaMetrics) *Launcher {
	return &Launcher{args: args, metrics: m}
}

// Start launches the relay. The process is killed when ctx is cancelled.
func (l *Launcher) Start(ctx context.Context) error {
	if len(l.args) == 0 {
		l.count("skipped")
		return errors.New("no relay command configured")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		return errors.New("relay already started")
	}

	slog.InfoContext(ctx, "Starting RTMP relay", "command", l.args)

	cmd := exec.CommandContext(ctx, l.args[0], l.args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		l.count("failed")
		return fmt.Errorf("start relay %q: %w", l.args[0], err)
	}

	slog.InfoContext(ctx, "RTMP relay started", "pid", cmd.Process.Pid)
	l.count("started")
	l.cmd = cmd
	l.done = make(chan struct{})

	go l.wait(ctx, cmd, l.done)
	return nil
}

// Done is closed once a started relay process has exited. It is nil before Start succeeds.
func (l *Launcher) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Launcher) wait(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	err := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		slog.Info("RTMP relay stopped", "pid", cmd.Process.Pid)
	case err != nil:
		slog.Error("RTMP relay exited", "pid", cmd.Process.Pid, "error", err)
		l.count("exited")
	default:
		slog.Warn("RTMP relay exited", "pid", cmd.Process.Pid)
		l.count("exited")
	}
}

func (l *Launcher) count(result string) {
	if l.metrics != nil {
		l.metrics.RelayLaunches.WithLabelValues(result).Inc()
	}
}
