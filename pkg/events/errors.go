package events

import "errors"

var (
	// ErrRecoverableValidation marks a payload a consumer rejected but that a
	// deterministic patch can repair.
	ErrRecoverableValidation = errors.New("recoverable validation fault")
	// ErrPoisonMessage marks a message that can never be processed.
	ErrPoisonMessage = errors.New("poison message")
)

const (
	FaultClassRecoverable = "RecoverableValidationFault"
	FaultClassPoison      = "PoisonMessage"
)

func ClassOf(err error) string {
	switch {
	case errors.Is(err, ErrRecoverableValidation):
		return FaultClassRecoverable
	case errors.Is(err, ErrPoisonMessage):
		return FaultClassPoison
	default:
		return ""
	}
}
