package errclass

import "errors"

// TemporaryError marks a failure worth retrying later (network, timeout,
// rate limit). Message is safe to show to users.
type TemporaryError struct {
	Message string
	Err     error
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will not go away on retry (video
// removed, private, restricted, captions disabled, copyright).
type PermanentError struct {
	Message string
	Err     error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Wrap classifies err and returns it as a *TemporaryError or a
// *PermanentError. Already-classified errors are returned as is.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var te *TemporaryError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}

	c := Classify(err)
	if c.Retryable {
		return &TemporaryError{Message: c.UserMessage, Err: err}
	}
	return &PermanentError{Message: c.UserMessage, Err: err}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return err != nil && Classify(err).Retryable
}
