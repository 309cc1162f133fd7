package exam

import "errors"

var (
	// ErrAuth reports a credential that does not match the configured secret.
	ErrAuth = errors.New("invalid credentials")

	// ErrInsufficientQuestions reports a draw size larger than the bank population.
	ErrInsufficientQuestions = errors.New("not enough questions to generate the exam")

	// ErrInvalidState reports an operation invoked outside its state-machine edge.
	ErrInvalidState = errors.New("operation not valid in current state")
)
