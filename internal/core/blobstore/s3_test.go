package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetu-labs/metaforge/internal/core"
)

// closeRecorder reports whether Close was called on the wrapped reader.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestCancelOnCloseKeepsContextAliveUntilClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &closeRecorder{Reader: strings.NewReader("blob bytes")}
	rc := &cancelOnClose{ReadCloser: inner, cancel: cancel}

	// The request context must stay live while the caller streams the body.
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "blob bytes", string(data))
	assert.NoError(t, ctx.Err())

	require.NoError(t, rc.Close())
	assert.True(t, inner.closed)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestMapGetErrorMissingKey(t *testing.T) {
	err := mapGetError("deadbeef", &types.NoSuchKey{})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "deadbeef")
}

func TestMapGetErrorKeepsRealCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := mapGetError("deadbeef", fmt.Errorf("operation error S3: GetObject: %w", cause))

	assert.NotErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, err, cause)
}
