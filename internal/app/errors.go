package app

import (
	"context"
	"errors"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

// Exit codes for nuxlab
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitAuthError    = 2
	ExitInvalidParam = 3
	ExitAPIError     = 4
	ExitWaitTimeout  = 5
)

// ExitCode maps an error from Ensure or its callers to a process exit code.
func ExitCode(err error) int {
	var (
		authErr    *nuagex.AuthError
		invalidErr *reconcile.InvalidParamError
		apiErr     *nuagex.APIError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &invalidErr):
		return ExitInvalidParam
	case errors.As(err, &apiErr):
		return ExitAPIError
	case errors.Is(err, nuagex.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitWaitTimeout
	default:
		return ExitGeneralError
	}
}

// ErrorKind names the class of err for metrics and logs. It is empty for nil.
func ErrorKind(err error) string {
	switch ExitCode(err) {
	case ExitSuccess:
		return ""
	case ExitAuthError:
		return "auth"
	case ExitInvalidParam:
		return "invalid_param"
	case ExitAPIError:
		return "api"
	case ExitWaitTimeout:
		return "timeout"
	default:
		return "other"
	}
}
