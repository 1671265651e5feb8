package perferrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"go.treeherder.org/infra/go/skerr"
)

func TestKind_WrappedSpecificError_ReturnsItsKind(t *testing.T) {
	err := skerr.Wrapf(ErrPendingParent, "resolving signature %q", "abc")
	assert.Equal(t, ErrNotFound, Kind(err))
	assert.True(t, errors.Is(err, ErrPendingParent))

	assert.Equal(t, ErrValidation, Kind(skerr.Wrap(ErrConflictingDatum)))
	assert.Equal(t, ErrUpstreamUnavailable, Kind(ErrDeadlineExceeded))
}

func TestKind_UnknownError_IsInternal(t *testing.T) {
	assert.Equal(t, ErrInternal, Kind(errors.New("boom")))
	assert.Nil(t, Kind(nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrUnknownFramework))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(skerr.Wrap(ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(skerr.Wrap(ErrStateTransitionRejected)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrUpstreamUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrPendingParent))
	assert.True(t, Retryable(ErrDeadlineExceeded))
	assert.True(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(ErrConflictingDatum))
	assert.False(t, Retryable(skerr.Wrap(ErrStateTransitionRejected)))
	assert.False(t, Retryable(nil))
}

func TestRetryable_MultiError_AnyRetryableWins(t *testing.T) {
	mixed := multierror.Append(nil, skerr.Wrap(ErrConflictingDatum), errors.New("connection reset by peer"))
	assert.True(t, Retryable(skerr.Wrap(mixed.ErrorOrNil())))

	dropped := multierror.Append(nil, ErrUnknownFramework, skerr.Wrap(ErrStateTransitionRejected))
	assert.False(t, Retryable(dropped.ErrorOrNil()))
}
