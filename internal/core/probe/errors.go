package probe

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/dispatchkeeper/internal/types"
)

// Error mapping:
// Validation errors map to INVALID_ARGUMENT.
// Missing groups map to NOT_FOUND.
// Context timeouts map to DEADLINE_EXCEEDED, cancellation to CANCELED.
// Everything else is a store failure and maps to UNAVAILABLE.

var invalidArgument = []error{
	types.ErrInvalidWindow,
	types.ErrNothingToDebug,
	types.ErrTooManyRules,
	types.ErrTooManyConditions,
	types.ErrInvalidPriority,
	types.ErrInvalidOperator,
	types.ErrInvalidConnector,
	types.ErrInvalidPattern,
	types.ErrInvalidSeverity,
	types.ErrInvalidTag,
	errMalformed,
}

var errMalformed = errors.New("malformed request")

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, types.ErrGroupNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return status.Error(codes.Unavailable, err.Error())
}
