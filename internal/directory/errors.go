package directory

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/permscope/permscope/internal/models"
)

// classify tags a raw SDK error with the retry taxonomy. Context
// cancellation passes through untouched so the orchestrator can map it to
// its own cancellation error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if status, ok := statusCode(err); ok {
		return classifyStatus(op, status, err)
	}

	// No HTTP status to go on. Network-level faults are worth retrying,
	// anything else is treated as a malformed request or client bug.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.NewTransientError(op, err)
	}

	return models.NewPermanentError(op, err)
}

func classifyStatus(op string, status int, err error) error {
	switch {
	case status == http.StatusNotFound:
		return models.NewNotFoundError(op, err)
	case status == http.StatusTooManyRequests:
		return models.NewTransientError(op, err)
	case status >= 500:
		return models.NewTransientError(op, err)
	case status == http.StatusRequestTimeout:
		return models.NewTransientError(op, err)
	default:
		// Remaining 4xx: auth denied, bad filter syntax, etc.
		return models.NewPermanentError(op, err)
	}
}

// statusCode extracts the HTTP status from Graph (kiota) and ARM (azcore)
// error shapes.
func statusCode(err error) (int, bool) {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		return odataErr.ResponseStatusCode, true
	}

	var apiErr *abstractions.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.ResponseStatusCode, true
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode, true
	}

	return 0, false
}
