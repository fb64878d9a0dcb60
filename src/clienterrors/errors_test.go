package clienterrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage_Rendering(t *testing.T) {
	err := MissingResponse.New("abc")

	assert.Equal(t, "CLI05", MissingResponse.Code())
	assert.Equal(t, "[CLI05] Illegal Client State: The required field 'res' of request 'abc' was not set.", err.Error())
	assert.Equal(t, "[QRY01] Query Error: The required field 'answer' of request 'x' was not set.", MissingAnswer.Message("x"))
}

func TestErrorMessage_MessageWithoutArgs(t *testing.T) {
	assert.Equal(t, "[CLI01] Illegal Client State: The client has been closed and no further operation is allowed.",
		ClientClosed.New().Error())
}

func TestClientError_IsAndUnwrap(t *testing.T) {
	err := StreamClosed.Wrap(io.ErrUnexpectedEOF, "req-1")
	wrapped := fmt.Errorf("failed to take response: %w", err)

	assert.True(t, errors.Is(wrapped, StreamClosed))
	assert.False(t, errors.Is(wrapped, ClientClosed))
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "unexpected EOF")

	var clientErr *ClientError
	assert.True(t, errors.As(wrapped, &clientErr))
	assert.Equal(t, StreamClosed, clientErr.ErrorMessage())
}
