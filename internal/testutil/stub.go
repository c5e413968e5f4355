package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/stubapi"
)

// StartStub serves an in-memory backend until the test ends and returns
// it with its base URL.
func StartStub(t *testing.T, opts ...stubapi.Option) (*stubapi.Server, string) {
	t.Helper()

	stub := stubapi.New(opts...)
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return stub, server.URL
}

// NewStubBackend starts an in-memory backend and returns it with a client
// pointed at it. Both are torn down with the test.
func NewStubBackend(t *testing.T, opts ...stubapi.Option) (*stubapi.Server, *apiclient.Client) {
	t.Helper()

	stub, baseURL := StartStub(t, opts...)
	client, err := apiclient.New(apiclient.Config{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("create api client: %v", err)
	}
	return stub, client
}

// FixedClock returns a clock stuck at t, for stub options and managers.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
