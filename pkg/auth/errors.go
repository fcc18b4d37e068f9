package auth

import (
	"errors"
	"fmt"
)

// ErrDelegationStarted is returned by Decide after it redirected the
// browser to the identity provider. The response is complete and the
// caller must not write to it.
var ErrDelegationStarted = errors.New("redirected to identity provider")

// DelegationError is a failed exchange with the identity provider. It is
// fatal for the request: the caller must not fall back to local login.
type DelegationError struct {
	Stage string
	Err   error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("delegated login failed during %s: %v", e.Stage, e.Err)
}

func (e *DelegationError) Unwrap() error {
	return e.Err
}

func delegationError(stage string, err error) error {
	return &DelegationError{Stage: stage, Err: err}
}
