package bridge

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Policy decides what a dispatch does when it cannot reach a live callback:
// no binding for (self, trampoline), a marshaling failure, a callback error
// or a callback panic.
type Policy uint8

const (
	// PolicyNoop returns the zero value of the slot's result type to native code.
	PolicyNoop Policy = iota
	// PolicyAbort closes the native module with AbortExitCode and unwinds the
	// guest to its host caller as *sys.ExitError.
	PolicyAbort
)

// AbortExitCode is the exit code of an aborted native module (128 + SIGABRT).
const AbortExitCode uint32 = 134

func (p Policy) String() string {
	switch p {
	case PolicyNoop:
		return "noop"
	case PolicyAbort:
		return "abort"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy parses "noop" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "noop":
		return PolicyNoop, nil
	case "abort":
		return PolicyAbort, nil
	}
	return PolicyNoop, fmt.Errorf("unknown fallback policy %q", s)
}

type options struct {
	runtime   wazero.Runtime
	policy    Policy
	shards    int
	logger    *zap.Logger
	observers []Observer
}

// Option configures a Bridge.
type Option func(*options)

// WithRuntime runs the bridge on an existing runtime. The bridge then does not
// close it.
func WithRuntime(rt wazero.Runtime) Option {
	return func(o *options) {
		o.runtime = rt
	}
}

// WithPolicy sets the fallback policy. The default is PolicyNoop.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithShards sets the binding registry shard count.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// WithLogger overrides the package logger for one bridge.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver adds an event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}
