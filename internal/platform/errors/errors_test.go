package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
)

func TestWrapKeepsOriginalCode(t *testing.T) {
	inner := errors.NotFound("timesheet", "ts-1")
	wrapped := errors.Wrap(fmt.Errorf("lookup: %w", inner), errors.ErrCodeInternal, "failed to get timesheet")

	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(wrapped))
	assert.True(t, stderrors.Is(wrapped, inner))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(stderrors.New("boom")))
	assert.Equal(t, errors.Code(""), errors.CodeOf(nil))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		http int
		grpc codes.Code
	}{
		{errors.Unauthorized("no"), http.StatusForbidden, codes.PermissionDenied},
		{errors.NotFound("user", "u"), http.StatusNotFound, codes.NotFound},
		{errors.InvalidTransition("not submitted"), http.StatusConflict, codes.FailedPrecondition},
		{errors.DuplicateSignature("twice"), http.StatusConflict, codes.AlreadyExists},
		{errors.InvalidInput("reason", "required"), http.StatusBadRequest, codes.InvalidArgument},
		{errors.New(errors.ErrCodeUnavailable, "db down"), http.StatusServiceUnavailable, codes.Unavailable},
		{stderrors.New("boom"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.http, errors.HTTPStatus(tt.err), tt.err.Error())
		assert.Equal(t, tt.grpc, errors.GRPCCode(tt.err), tt.err.Error())
	}
}
