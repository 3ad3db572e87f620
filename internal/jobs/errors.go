package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownJob is returned for jobs whose name has no registered handler.
var ErrUnknownJob = errors.New("no handler registered for job")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job goes straight to the
// dead letter state.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Decode unmarshals the job payload into T. Malformed payloads are permanent
// failures since retrying cannot fix them.
func Decode[T any](job *Job) (T, error) {
	var v T
	if len(job.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return v, Permanent(fmt.Errorf("decode %s payload: %w", job.Name, err))
	}
	return v, nil
}
