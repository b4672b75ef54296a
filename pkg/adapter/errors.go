package adapter

import (
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
)

var ErrNotConnected = errors.New("connection not established")

// ConfigurationError lists every violation found before any connection attempt.
type ConfigurationError struct {
	Protocol constant.Protocol
	Errs     field.ErrorList
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Protocol, e.Errs.ToAggregate())
}

func (e *ConfigurationError) Messages() []string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// ConnectionError is a transport failure while connecting or disconnecting.
type ConnectionError struct {
	Protocol constant.Protocol
	Latency  time.Duration
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed after %dms: %v", e.Protocol, e.Latency.Milliseconds(), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotConnectedError is returned for unknown, closed or broken handles.
type NotConnectedError struct {
	HandleID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%v: handle %q", ErrNotConnected, e.HandleID)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// DecodeError is a single parameter whose buffer did not fit its data type.
type DecodeError struct {
	Parameter string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Parameter, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError rejects a write before any wire I/O.
type ValidationError struct {
	Parameter string
	Value     float64
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("value %g rejected: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: value %g rejected: %s", e.Parameter, e.Value, e.Reason)
}

// CheckRange enforces the soft min/max bounds of m.
func CheckRange(m *runtime.RegisterMapping, v float64) error {
	if m.InRange(v) {
		return nil
	}
	reason := "out of range"
	switch {
	case m.MinValue != nil && m.MaxValue != nil:
		reason = fmt.Sprintf("must be between %g and %g", *m.MinValue, *m.MaxValue)
	case m.MinValue != nil:
		reason = fmt.Sprintf("must be at least %g", *m.MinValue)
	case m.MaxValue != nil:
		reason = fmt.Sprintf("must be at most %g", *m.MaxValue)
	}
	return &ValidationError{Parameter: m.ParameterName, Value: v, Reason: reason}
}
