package errors

import (
	"fmt"
	"time"

	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// GraphError is an error response from the Microsoft Graph API.
type GraphError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *GraphError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: %d: %s", e.Status, e.Message)
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	if graphErr, ok := err.(*GraphError); ok {
		switch graphErr.Status {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// RetryAfterOf extracts the server-requested delay, zero if none.
func RetryAfterOf(err error) time.Duration {
	if graphErr, ok := err.(*GraphError); ok {
		return graphErr.RetryAfter
	}
	return 0
}

// ClassifyGraphError converts Graph API errors to CLI errors
func ClassifyGraphError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	graphErr, ok := err.(*GraphError)
	if !ok {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeTransientAPI, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build())
	}

	var code string
	var retryable bool

	switch graphErr.Status {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
		if graphErr.Code == "unauthenticated" {
			code = utils.ErrCodeAuthRequired
		}
	case 403:
		code = utils.ErrCodePermissionDenied
		switch graphErr.Code {
		case "activityLimitReached":
			code = utils.ErrCodeRateLimited
			retryable = true
		case "quotaLimitReached":
			code = utils.ErrCodeInvalidState
		}
	case 404:
		code = utils.ErrCodeNotFound
	case 409:
		code = utils.ErrCodeInvalidArgument
	case 410:
		code = utils.ErrCodeInvalidState
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeTransientAPI
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = graphErr.Status >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", graphErr.Status),
		logging.F("errorCode", code),
		logging.F("graphCode", graphErr.Code),
		logging.F("retryable", retryable),
		logging.F("message", graphErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, graphErr.Message).
		WithHTTPStatus(graphErr.Status).
		WithGraphCode(graphErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	switch code {
	case utils.ErrCodeAuthRequired:
		builder.WithContext("suggestedAction", "run 'onemirror auth login' to authenticate")
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'onemirror auth login' to re-authenticate")
	case utils.ErrCodeNotFound:
		builder.WithContext("suggestedAction", "verify item ID or path is correct and accessible")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
		if graphErr.RetryAfter > 0 {
			builder.WithContext("retryAfterSeconds", int(graphErr.RetryAfter/time.Second))
		}
	}

	if graphErr.Code == "resyncRequired" {
		builder.WithContext("suggestedAction", "restart the backup from the beginning")
	}

	if len(reqCtx.InvolvedItemIDs) > 0 {
		builder.WithContext("itemIds", reqCtx.InvolvedItemIDs)
	}

	return utils.NewAppError(builder.Build())
}
