package tor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// Daemon is an embedded Tor process managed through tornago.
//
// Bootstrapping takes one to three minutes: Tor downloads the directory
// consensus and builds its first circuits before the SOCKS port answers.
type Daemon struct {
	startupTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	process *tornago.TorProcess
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) DaemonOption {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// WithDaemonLogger sets the logger.
func WithDaemonLogger(logger *slog.Logger) DaemonOption {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// NewDaemon creates a daemon manager. Call Start to launch Tor.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{
		startupTimeout: 3 * time.Minute,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches Tor on OS-assigned ports and waits for it to bootstrap.
// If ctx is cancelled while Tor starts, the process is stopped and the
// context error returned.
func (d *Daemon) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	d.logger.Info("starting embedded Tor daemon", "timeout", d.startupTimeout)
	started := time.Now()

	// StartTorDaemon blocks until bootstrap completes, so run it aside and
	// stay responsive to ctx.
	type startResult struct {
		process *tornago.TorProcess
		err     error
	}
	ch := make(chan startResult, 1)
	go func() {
		p, err := tornago.StartTorDaemon(launchCfg)
		ch <- startResult{process: p, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		d.mu.Lock()
		d.process = res.process
		d.mu.Unlock()
		d.logger.Info("embedded Tor daemon ready",
			"socks", res.process.SocksAddr(),
			"elapsed", time.Since(started),
		)
		return nil
	case <-ctx.Done():
		// Reap the process once it finishes starting.
		go func() {
			if res := <-ch; res.err == nil {
				_ = res.process.Stop() //nolint:errcheck // best effort cleanup
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. It is safe to call on a daemon that is not
// running.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	return err
}

// IsRunning reports whether the daemon has been started and not stopped.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.process != nil
}

// SocksAddr returns the SOCKS address of the running daemon, or "".
func (d *Daemon) SocksAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.process == nil {
		return ""
	}
	return d.process.SocksAddr()
}

// Proxy returns a Proxy for the daemon's SOCKS port.
func (d *Daemon) Proxy() (*Proxy, error) {
	addr := d.SocksAddr()
	if addr == "" {
		return nil, ErrDaemonNotRunning
	}
	return NewProxy(addr)
}
