package invoker

import "errors"

var (
	// ErrLaunchFailed is returned when the external tool cannot be started
	ErrLaunchFailed = errors.New("failed to launch external tool")

	// ErrTimeout is returned when an invocation exceeds its deadline
	ErrTimeout = errors.New("invocation timed out")

	// ErrNonZeroExit is returned when the external tool exits with a non-zero status
	ErrNonZeroExit = errors.New("external tool exited with non-zero status")

	// ErrMalformedOutput is returned when the tool output cannot be parsed
	ErrMalformedOutput = errors.New("malformed external tool output")

	// ErrToolReported is returned when the tool ran but flagged a logical error
	ErrToolReported = errors.New("external tool reported an error")

	// ErrInvalidRequest is returned when the invocation request is incomplete
	ErrInvalidRequest = errors.New("invalid invocation request")
)

// Kind identifies the failure class of an invocation error.
type Kind string

const (
	KindLaunch          Kind = "launch"
	KindTimeout         Kind = "timeout"
	KindNonZeroExit     Kind = "non_zero_exit"
	KindMalformedOutput Kind = "malformed_output"
	KindToolReported    Kind = "tool_reported"
	KindInternal        Kind = "internal"
)

// KindOf classifies an invocation error into its failure kind.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrLaunchFailed):
		return KindLaunch
	case errors.Is(err, ErrNonZeroExit):
		return KindNonZeroExit
	case errors.Is(err, ErrMalformedOutput):
		return KindMalformedOutput
	case errors.Is(err, ErrToolReported):
		return KindToolReported
	default:
		return KindInternal
	}
}
