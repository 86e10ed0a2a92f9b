package aws

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// errorCode extracts the provider error code, or "" for non-API errors.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound reports whether err is any of the provider's
// Invalid*.NotFound family.
func isNotFound(err error) bool {
	return strings.HasSuffix(errorCode(err), ".NotFound")
}

// isThrottling reports whether err is a rate limit rejection.
func isThrottling(err error) bool {
	code := errorCode(err)
	return code == "RequestLimitExceeded" || strings.Contains(code, "Throttl")
}

// classifyKind maps a provider error to the domain error taxonomy.
func classifyKind(err error) errors.Kind {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.HasSuffix(code, ".NotFound"):
			return errors.KindUnknownInterface
		case code == "UnauthorizedOperation" || code == "AccessDenied" || code == "AuthFailure":
			return errors.KindAWSPermission
		case strings.HasPrefix(code, "InvalidParameter") ||
			strings.HasSuffix(code, ".Malformed") ||
			code == "MissingParameter":
			return errors.KindInvalidParameter
		}
		return errors.KindServiceError
	}
	return errors.KindServiceError
}

// wrapAPIError classifies err and wraps it with the failed operation.
// Context cancellation passes through unchanged.
func wrapAPIError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(classifyKind(err),
		fmt.Sprintf("failed to %s", operation), nil, err)
}
