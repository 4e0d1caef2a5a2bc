package backend

import (
	"errors"
	"fmt"
	"strings"
)

// permanentPhrases are backend error messages indicating a task is already
// resolved or inaccessible. A submit failure carrying one of these must not
// be retried.
var permanentPhrases = []string{
	"already submitted",
	"already auto-submitted",
	"already expired",
	"not authorized",
	"not found",
}

// SubmitError is returned when the backend rejects a task submission.
type SubmitError struct {
	TaskID     string
	StatusCode int
	Message    string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submitting task %s (%d): %s", e.TaskID, e.StatusCode, e.Message)
}

// Permanent reports whether the rejection means the task can never be
// submitted by this client, as opposed to a transient failure.
func (e *SubmitError) Permanent() bool {
	msg := strings.ToLower(e.Message)
	for _, phrase := range permanentPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// IsPermanentSubmitError reports whether err (or any error in its chain)
// is a SubmitError classified as permanent.
func IsPermanentSubmitError(err error) bool {
	var submitErr *SubmitError
	return errors.As(err, &submitErr) && submitErr.Permanent()
}
