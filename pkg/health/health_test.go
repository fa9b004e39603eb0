package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-tools/depman-go/pkg/portprobe"
)

// HealthMockLogger is a simple mock implementation of Logger for testing
type HealthMockLogger struct{}

func (m *HealthMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *HealthMockLogger) Debugf(format string, args ...interface{})               {}
func (m *HealthMockLogger) Infof(format string, args ...interface{})                {}
func (m *HealthMockLogger) Warnf(format string, args ...interface{})                {}
func (m *HealthMockLogger) Errorf(format string, args ...interface{})               {}

func newTestChecker() *Checker {
	logger := &HealthMockLogger{}
	return NewChecker(portprobe.NewProbe(logger), logger)
}

func findResult(t *testing.T, results []Result, kind CheckKind) Result {
	t.Helper()
	for _, result := range results {
		if result.Kind == kind {
			return result
		}
	}
	t.Fatalf("no result of kind %s", kind)
	return Result{}
}

func TestCheck_FullBatteryHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{
		Service:    "api",
		PID:        os.Getpid(),
		Port:       port,
		URL:        server.URL + "/health",
		RetryDelay: 50 * time.Millisecond,
	})

	require.Len(t, results, 3)
	assert.True(t, Healthy(results))

	// The battery reports in a fixed order: HTTP, then port, then process
	assert.Equal(t, CheckKindHTTPReachable, results[0].Kind)
	assert.Equal(t, CheckKindPortListening, results[1].Kind)
	assert.Equal(t, CheckKindProcessAlive, results[2].Kind)
	for _, result := range results {
		assert.True(t, result.Passed, "check %s", result.Kind)
	}
}

func TestCheck_DeadProcessStillReportsOtherChecks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{
		Service:    "api",
		PID:        1 << 30, // pid far beyond any real process
		URL:        server.URL,
		RetryDelay: 50 * time.Millisecond,
	})

	require.Len(t, results, 2)
	assert.False(t, Healthy(results))
	assert.False(t, findResult(t, results, CheckKindProcessAlive).Passed)
	assert.True(t, findResult(t, results, CheckKindHTTPReachable).Passed)
}

func TestCheck_HTTPRetriesThenPasses(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{
		Service:      "api",
		URL:          server.URL,
		HTTPAttempts: 3,
		RetryDelay:   50 * time.Millisecond,
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCheck_HTTPFailsAfterExhaustingRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{
		Service:      "api",
		URL:          server.URL,
		HTTPAttempts: 2,
		RetryDelay:   50 * time.Millisecond,
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Details, "unexpected status")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCheck_PortNotListening(t *testing.T) {
	deadPort, err := freeport.GetFreePort()
	require.NoError(t, err)

	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{
		Service: "frontend",
		Port:    deadPort,
	})

	require.Len(t, results, 1)
	assert.Equal(t, CheckKindPortListening, results[0].Kind)
	assert.False(t, results[0].Passed)
}

func TestCheck_EmptyConfigRunsNothing(t *testing.T) {
	checker := newTestChecker()
	results := checker.Check(context.Background(), CheckConfig{Service: "api"})
	assert.Empty(t, results)
	assert.True(t, Healthy(results))
}
