package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"capd/internal/domain"
)

func statusFromError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: deadline exceeded", op)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: canceled", op)
	}
	if code, ok := domain.CodeFrom(err); ok {
		return statusFromCode(op, code, err)
	}
	return statusFromCode(op, domain.CodeInternal, err)
}

func statusFromCode(op string, code domain.ErrorCode, err error) error {
	msg := err.Error()
	if op != "" {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return status.Error(grpcCodeFromDomain(code), msg)
}

func grpcCodeFromDomain(code domain.ErrorCode) codes.Code {
	switch code {
	case domain.CodeInvalidArgument:
		return codes.InvalidArgument
	case domain.CodeNotFound:
		return codes.NotFound
	case domain.CodeUnavailable:
		return codes.Unavailable
	case domain.CodeFailedPrecond:
		return codes.FailedPrecondition
	case domain.CodeUnauthenticated:
		return codes.Unauthenticated
	case domain.CodeCanceled:
		return codes.Canceled
	case domain.CodeDeadline:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
