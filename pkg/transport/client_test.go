package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/logging"
)

func newTestClient(engineURL string) *Client {
	return NewClient(Config{EngineBaseURL: engineURL, Timeout: 5 * time.Second}, logging.NewNop())
}

func TestTrigger(t *testing.T) {
	var gotPath, gotContentType string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "processing",
			"pollUrl":     "/webhook/status/job-1",
			"executionId": "job-1",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Trigger(context.Background(), "/webhook/video-gen", map[string]interface{}{"prompt": "a red fox"})
	require.NoError(t, err)

	assert.Equal(t, "/webhook/video-gen", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]interface{}{"prompt": "a red fox"}, gotPayload)

	require.True(t, resp.IsJSON())
	env := resp.Envelope()
	require.NotNil(t, env)
	assert.Equal(t, JobProcessing, env.Status)
	assert.Equal(t, "/webhook/status/job-1", env.PollURL)
	assert.Equal(t, "job-1", env.ExecutionID)
}

func TestTriggerStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   agenterrors.Code
		wantInMsg  string
		wantStatus int
	}{
		{"bad gateway", 502, "", agenterrors.CodeNetwork, "temporarily unavailable", 502},
		{"service unavailable", 503, "", agenterrors.CodeNetwork, "temporarily unavailable", 503},
		{"not found", 404, "", agenterrors.CodeWebhook, "not found or not activated", 404},
		{"server error with body", 500, "execution blew up", agenterrors.CodeWebhook, "execution blew up", 500},
		{"teapot", 418, "", agenterrors.CodeWebhook, "418", 418},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Trigger(context.Background(), "/webhook/x", nil)
			require.Error(t, err)

			var typed *agenterrors.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.wantCode, typed.Code)
			assert.Equal(t, tt.wantStatus, typed.HTTPStatus)
			assert.Contains(t, typed.Message, tt.wantInMsg)
		})
	}
}

func TestTriggerConnectionFailure(t *testing.T) {
	// Point at a server that is no longer listening
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)
	_, err := client.Trigger(context.Background(), "/webhook/x", nil)
	require.Error(t, err)

	assert.True(t, agenterrors.Is(err, agenterrors.CodeNetwork))
	// Connection failures are retryable under the default policy
	assert.True(t, agenterrors.IsRetryable(err))
}

func TestTriggerContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	client := newTestClient(server.URL)
	_, err := client.Trigger(ctx, "/webhook/x", nil)
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.CodeExecutionTimeout))
}

func TestTriggerNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte{0x00, 0x01, 0x02, 0x03})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Trigger(context.Background(), "/webhook/x", nil)
	require.NoError(t, err)

	assert.False(t, resp.IsJSON())
	assert.Nil(t, resp.Envelope())
	assert.Equal(t, "video/mp4", resp.ContentType)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, resp.Body)
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		webhook  string
		expected string
	}{
		{
			name:     "engine path",
			config:   Config{EngineBaseURL: "https://engine.example.com"},
			webhook:  "/webhook/video-gen",
			expected: "https://engine.example.com/webhook/video-gen",
		},
		{
			name:     "bare path gains webhook prefix",
			config:   Config{EngineBaseURL: "https://engine.example.com/"},
			webhook:  "video-gen",
			expected: "https://engine.example.com/webhook/video-gen",
		},
		{
			name:     "absolute url reduced to its path",
			config:   Config{EngineBaseURL: "https://engine.example.com"},
			webhook:  "https://other.example.com/webhook/video-gen",
			expected: "https://engine.example.com/webhook/video-gen",
		},
		{
			name:     "proxy form",
			config:   Config{EngineBaseURL: "https://engine.example.com", ForwardBase: "http://localhost:8080", UseProxy: true},
			webhook:  "/webhook/video-gen",
			expected: "http://localhost:8080/proxy/webhook/video-gen",
		},
		{
			name:     "forwarding path used verbatim",
			config:   Config{EngineBaseURL: "https://engine.example.com", ForwardBase: "http://localhost:8080"},
			webhook:  "/proxy/webhook/video-gen",
			expected: "http://localhost:8080/proxy/webhook/video-gen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.config, logging.NewNop())
			assert.Equal(t, tt.expected, client.ResolveURL(tt.webhook))
		})
	}
}

func TestFetchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/webhook/status/job-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "completed", "data": "https://x/vid.mp4"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Engine-relative poll URL
	resp, err := client.FetchStatus(context.Background(), "/webhook/status/job-1")
	require.NoError(t, err)
	env := resp.Envelope()
	require.NotNil(t, env)
	assert.Equal(t, JobCompleted, env.Status)
	assert.Equal(t, "https://x/vid.mp4", env.Data)

	// Absolute poll URL
	resp, err = client.FetchStatus(context.Background(), server.URL+"/webhook/status/job-1")
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, resp.Envelope().Status)
}

func TestCheckAvailability(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", 200, true},
		{"no content", 204, true},
		{"not found still up", 404, true},
		{"server error", 500, false},
		{"unavailable", 503, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			assert.Equal(t, tt.want, client.CheckAvailability(context.Background()))
		})
	}
}

func TestCheckAvailabilityUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)
	assert.False(t, client.CheckAvailability(context.Background()))
}

func TestForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook/video-gen", r.URL.Path)
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		// Hop-by-hop headers are not forwarded
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	header := http.Header{}
	header.Set("X-Custom", "yes")
	header.Set("Proxy-Authorization", "secret")

	resp, err := client.Forward(context.Background(), http.MethodPost, "video-gen", nil, header)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestEnvelopeImmediatePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url": "https://x/vid.mp4", "duration": 5}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Trigger(context.Background(), "/webhook/x", nil)
	require.NoError(t, err)

	// No status field: the envelope is empty but the JSON value is there
	env := resp.Envelope()
	require.NotNil(t, env)
	assert.Empty(t, env.Status)
	obj, ok := resp.JSON.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://x/vid.mp4", obj["url"])
}
