package provider

import (
	"fmt"
	"net/netip"
)

// Kind classifies the result of one update attempt.
type Kind int

const (
	KindUnchanged Kind = iota
	KindApplied
	KindRetryable
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindUnchanged:
		return "unchanged"
	case KindApplied:
		return "applied"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one update attempt. Retryable
// outcomes feed the backoff state machine; fatal outcomes suspend the
// record until operator intervention.
type Outcome struct {
	Kind   Kind
	IP     netip.Addr
	Reason string
}

func Unchanged() Outcome {
	return Outcome{Kind: KindUnchanged}
}

func Applied(ip netip.Addr) Outcome {
	return Outcome{Kind: KindApplied, IP: ip}
}

func Retryable(reason string) Outcome {
	return Outcome{Kind: KindRetryable, Reason: reason}
}

func Retryablef(format string, args ...any) Outcome {
	return Retryable(fmt.Sprintf(format, args...))
}

func Fatal(reason string) Outcome {
	return Outcome{Kind: KindFatal, Reason: reason}
}

func Fatalf(format string, args ...any) Outcome {
	return Fatal(fmt.Sprintf(format, args...))
}
