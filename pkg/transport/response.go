package transport

import (
	"encoding/json"
	"net/http"
)

// Job statuses reported by the engine
const (
	// JobProcessing means the engine accepted a long-running job
	JobProcessing = "processing"

	// JobCompleted means the job finished with data
	JobCompleted = "completed"

	// JobFailed means the job finished with an error
	JobFailed = "failed"
)

// EngineResponse is a successful (2xx) engine answer
type EngineResponse struct {
	// StatusCode is the HTTP status
	StatusCode int

	// ContentType is the response Content-Type header
	ContentType string

	// Body is the raw response body
	Body []byte

	// JSON is the decoded body when it parsed as JSON, else nil
	JSON interface{}
}

// newEngineResponse wraps a 2xx response, decoding JSON bodies
func newEngineResponse(resp *http.Response, body []byte) *EngineResponse {
	er := &EngineResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if len(body) > 0 {
		var value interface{}
		if err := json.Unmarshal(body, &value); err == nil {
			er.JSON = value
		}
	}
	return er
}

// IsJSON reports whether the body decoded as JSON
func (r *EngineResponse) IsJSON() bool {
	return r.JSON != nil
}

// JobEnvelope is the engine's job response contract
type JobEnvelope struct {
	// Status is processing, completed, or failed; empty when the
	// response is an immediate payload
	Status string

	// PollURL is where job status can be fetched
	PollURL string

	// ExecutionID is the engine-side job id
	ExecutionID string

	// EstimatedTime is the engine's completion estimate, when reported
	EstimatedTime int

	// Message describes a failure
	Message string

	// Data is the result payload
	Data interface{}

	// Metadata carries result descriptors
	Metadata map[string]interface{}
}

// Envelope returns the typed job envelope when the body decoded to a
// JSON object, else nil
func (r *EngineResponse) Envelope() *JobEnvelope {
	obj, ok := r.JSON.(map[string]interface{})
	if !ok {
		return nil
	}

	env := &JobEnvelope{}
	if s, ok := obj["status"].(string); ok {
		env.Status = s
	}
	if s, ok := obj["pollUrl"].(string); ok {
		env.PollURL = s
	}
	if s, ok := obj["executionId"].(string); ok {
		env.ExecutionID = s
	}
	if s, ok := obj["message"].(string); ok {
		env.Message = s
	}
	if n, ok := obj["estimatedTime"].(float64); ok {
		env.EstimatedTime = int(n)
	}
	if v, ok := obj["data"]; ok {
		env.Data = v
	}
	if m, ok := obj["metadata"].(map[string]interface{}); ok {
		env.Metadata = m
	}
	return env
}
