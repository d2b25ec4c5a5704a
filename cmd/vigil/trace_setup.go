package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/trace"
)

// tracing is the tracer built from the --trace* flags. The heartbeat is
// started separately once there is an engine to sample.
type tracing struct {
	tracer    trace.Tracer
	heartbeat time.Duration
	cleanup   func()
}

// startHeartbeat emits heartbeats carrying sampled state until the returned
// func is called.
func (t tracing) startHeartbeat(sample trace.Sampler) func() {
	hb := trace.StartHeartbeat(t.tracer, t.heartbeat, sample)
	return hb.Stop
}

// setupTracing reads the --trace* flags and builds the tracer handed to the
// session. The cleanup flushes and closes the output.
func setupTracing(cmd *cobra.Command) (tracing, error) {
	flags := cmd.Flags()
	output, err := flags.GetString("trace")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := flags.GetString("trace-level")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return tracing{}, err
	}
	// --trace without a level means "everything per project"
	if level == trace.LevelOff && output != "" {
		level = trace.LevelProject
	}
	if level == trace.LevelOff {
		return tracing{tracer: trace.Nop, cleanup: func() {}}, nil
	}

	modeStr, err := flags.GetString("trace-mode")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return tracing{}, err
	}
	formatStr, err := flags.GetString("trace-format")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return tracing{}, err
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeatInterval, err := flags.GetDuration("trace-heartbeat")
	if err != nil {
		return tracing{}, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   ringSize,
	})
	if err != nil {
		return tracing{}, fmt.Errorf("failed to create tracer: %w", err)
	}

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracing{tracer: tracer, heartbeat: heartbeatInterval, cleanup: cleanup}, nil
}
