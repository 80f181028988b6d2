package nifi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nifimcp/retry"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
	"github.com/BaSui01/nifimcp/types"
)

const fakeRoot = fakenifi.RootID

func fastRetry() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakenifi.Server) {
	t.Helper()
	fake := fakenifi.New(t)
	base := []Option{
		WithSession(fake.Client()),
		WithRetryPolicy(fastRetry()),
		WithPollInterval(time.Millisecond),
		WithPollTimeout(2 * time.Second),
	}
	c, err := NewClient(fake.URL(), append(base, opts...)...)
	require.NoError(t, err)
	return c, fake
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func assertCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}
