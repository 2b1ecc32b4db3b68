package workload

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tempo-operator/pkg/config"
	"github.com/cuemby/tempo-operator/pkg/health"
	"github.com/cuemby/tempo-operator/pkg/log"
)

// Supervisor restarts the tracing workload on a new configuration
type Supervisor interface {
	// Restart restarts the workload and returns once it is ready
	Restart(ctx context.Context) error
	// Ready reports whether the workload currently answers as ready
	Ready(ctx context.Context) health.Result
}

// CommandSupervisor restarts the workload by running a host command, such
// as a service manager invocation, then waits for readiness.
type CommandSupervisor struct {
	command        []string
	restartTimeout time.Duration
	checker        health.Checker
	ready          health.Config
	logger         zerolog.Logger
}

// NewCommandSupervisor creates a supervisor from the workload configuration.
// Without a restart command only readiness is awaited, for hosts that
// reload the workload on their own when its files change.
func NewCommandSupervisor(cfg config.WorkloadConfig) *CommandSupervisor {
	s := &CommandSupervisor{
		command:        cfg.RestartCommand,
		restartTimeout: cfg.RestartTimeout,
		ready: health.Config{
			Interval: time.Second,
			Timeout:  cfg.ReadyTimeout,
		},
		logger: log.WithComponent("workload"),
	}
	if cfg.ReadyURL != "" {
		s.checker = health.NewReadyChecker(cfg.ReadyURL)
	}
	return s
}

// WithChecker replaces the readiness checker
func (s *CommandSupervisor) WithChecker(checker health.Checker, cfg health.Config) *CommandSupervisor {
	s.checker = checker
	s.ready = cfg
	return s
}

// Restart runs the restart command and waits for readiness
func (s *CommandSupervisor) Restart(ctx context.Context) error {
	if len(s.command) > 0 {
		if err := s.run(ctx); err != nil {
			return err
		}
	}

	if s.checker == nil {
		return nil
	}

	status, err := health.WaitReady(ctx, s.checker, s.ready)
	if err != nil {
		return fmt.Errorf("workload readiness: %w", err)
	}
	s.logger.Info().
		Int("checks", status.ConsecutiveFailures+status.ConsecutiveSuccesses).
		Msg("workload ready")
	return nil
}

func (s *CommandSupervisor) run(ctx context.Context) error {
	if s.restartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.restartTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		if msg != "" {
			return fmt.Errorf("restart command %v failed: %w: %s", s.command, err, msg)
		}
		return fmt.Errorf("restart command %v failed: %w", s.command, err)
	}

	s.logger.Debug().Strs("command", s.command).Dur("duration", time.Since(start)).Msg("restart command completed")
	return nil
}

// Ready performs a single readiness check
func (s *CommandSupervisor) Ready(ctx context.Context) health.Result {
	if s.checker == nil {
		return health.Result{Healthy: true, Message: "no readiness check configured", CheckedAt: time.Now()}
	}
	return s.checker.Check(ctx)
}
