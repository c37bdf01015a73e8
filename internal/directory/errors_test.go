package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permscope/permscope/internal/models"
)

func kindOf(t *testing.T, err error) models.DirectoryErrorKind {
	t.Helper()
	var derr *models.DirectoryError
	require.ErrorAs(t, err, &derr)
	return derr.Kind
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("op", nil))
}

func TestClassify_ContextErrorsPassThrough(t *testing.T) {
	err := classify("op", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)

	var derr *models.DirectoryError
	assert.False(t, errors.As(err, &derr))

	err = classify("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   models.DirectoryErrorKind
	}{
		{"not found", 404, models.DirectoryErrorNotFound},
		{"throttled", 429, models.DirectoryErrorTransient},
		{"server error", 500, models.DirectoryErrorTransient},
		{"bad gateway", 502, models.DirectoryErrorTransient},
		{"service unavailable", 503, models.DirectoryErrorTransient},
		{"request timeout", 408, models.DirectoryErrorTransient},
		{"unauthorized", 401, models.DirectoryErrorPermanent},
		{"forbidden", 403, models.DirectoryErrorPermanent},
		{"bad request", 400, models.DirectoryErrorPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStatus("op", tc.status, errors.New("boom"))
			assert.Equal(t, tc.kind, kindOf(t, err))
		})
	}
}

func TestClassify_GraphODataError(t *testing.T) {
	odataErr := odataerrors.NewODataError()
	odataErr.ResponseStatusCode = 404

	err := classify("get_identity", odataErr)
	assert.Equal(t, models.DirectoryErrorNotFound, kindOf(t, err))
	assert.True(t, models.IsNotFound(err))
}

func TestClassify_KiotaApiError(t *testing.T) {
	apiErr := &abstractions.ApiError{ResponseStatusCode: 429}

	err := classify("list_memberships", apiErr)
	assert.Equal(t, models.DirectoryErrorTransient, kindOf(t, err))
}

func TestClassify_ARMResponseError(t *testing.T) {
	respErr := &azcore.ResponseError{StatusCode: 503, ErrorCode: "ServerBusy"}

	err := classify("list_role_assignments", respErr)
	assert.Equal(t, models.DirectoryErrorTransient, kindOf(t, err))
}

func TestClassify_NetworkError(t *testing.T) {
	err := classify("op", &fakeNetError{})
	assert.Equal(t, models.DirectoryErrorTransient, kindOf(t, err))
}

func TestClassify_UnknownErrorIsPermanent(t *testing.T) {
	err := classify("op", errors.New("unexpected payload"))
	assert.Equal(t, models.DirectoryErrorPermanent, kindOf(t, err))
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }
