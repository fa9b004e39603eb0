package readiness

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-tools/depman-go/pkg/errors"
)

// ReadinessMockLogger is a simple mock implementation of Logger for testing
type ReadinessMockLogger struct{}

func (m *ReadinessMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ReadinessMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ReadinessMockLogger) Infof(format string, args ...interface{})                {}
func (m *ReadinessMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ReadinessMockLogger) Errorf(format string, args ...interface{})               {}

func TestAwaitReady_HTTPTargetAlreadyServing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), []Target{
		{Service: "api", URL: server.URL + "/health"},
	}, 3*time.Second, 100*time.Millisecond)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Ready)
	assert.Equal(t, "api", results[0].Service)
}

func TestAwaitReady_HTTPTargetBecomesReadyLate(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), []Target{
		{Service: "api", URL: server.URL},
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, err)
	assert.True(t, results[0].Ready)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestAwaitReady_Non2xxIsNotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), []Target{
		{Service: "api", URL: server.URL},
	}, 300*time.Millisecond, 100*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.IsTimeoutError(err))
	assert.False(t, results[0].Ready)
	assert.Contains(t, results[0].Message, "unexpected status")
}

func TestAwaitReady_TCPTarget(t *testing.T) {
	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), []Target{
		{Service: "frontend", Port: port},
	}, 3*time.Second, 100*time.Millisecond)

	require.NoError(t, err)
	assert.True(t, results[0].Ready)
}

func TestAwaitReady_TimeoutReportsOnlyLaggards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	deadPort, err := freeport.GetFreePort()
	require.NoError(t, err)

	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), []Target{
		{Service: "api", URL: server.URL},
		{Service: "frontend", Port: deadPort},
	}, 500*time.Millisecond, 100*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.IsTimeoutError(err))

	require.Len(t, results, 2)
	assert.True(t, results[0].Ready)
	assert.False(t, results[1].Ready)

	var domainErr *errors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, []string{"frontend"}, domainErr.Context["services"])
}

func TestAwaitReady_ContextCancellation(t *testing.T) {
	deadPort, err := freeport.GetFreePort()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	poller := NewPoller(&ReadinessMockLogger{})
	started := time.Now()
	_, err = poller.AwaitReady(ctx, []Target{
		{Service: "frontend", Port: deadPort},
	}, 30*time.Second, 100*time.Millisecond)

	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second, "cancellation should cut the wait short")
}

func TestAwaitReady_NoTargets(t *testing.T) {
	poller := NewPoller(&ReadinessMockLogger{})
	results, err := poller.AwaitReady(context.Background(), nil, time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProbeTCP_RefusedConnection(t *testing.T) {
	deadPort, err := freeport.GetFreePort()
	require.NoError(t, err)

	poller := NewPoller(&ReadinessMockLogger{})
	ok, message := poller.probe(context.Background(), Target{Service: "x", Port: deadPort})
	assert.False(t, ok)
	assert.Contains(t, message, "dial failed")
}
