package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/sessionctl"
	"github.com/matheus3301/showroom/internal/showroom"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, sessionctl.ErrNoTarget):
		code = codes.FailedPrecondition
	case errors.Is(err, sessionctl.ErrLocked), errors.Is(err, sessionctl.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, sessionctl.ErrEmpty), errors.Is(err, attach.ErrTooLarge):
		code = codes.InvalidArgument
	case errors.Is(err, sessionctl.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	var se *showroom.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized:
			code = codes.Unauthenticated
		case http.StatusForbidden:
			code = codes.PermissionDenied
		case http.StatusNotFound:
			code = codes.NotFound
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			code = codes.InvalidArgument
		default:
			code = codes.Unavailable
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
