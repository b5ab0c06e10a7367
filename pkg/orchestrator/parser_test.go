package orchestrator

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/transport"
)

// jsonResponse builds a 2xx engine answer from a JSON-encodable value
func jsonResponse(value interface{}) *transport.EngineResponse {
	body, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		panic(err)
	}
	return &transport.EngineResponse{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
		JSON:        decoded,
	}
}

// rawResponse builds a 2xx engine answer with a non-JSON body
func rawResponse(body []byte, contentType string) *transport.EngineResponse {
	return &transport.EngineResponse{
		StatusCode:  http.StatusOK,
		ContentType: contentType,
		Body:        body,
	}
}

// parserFixture builds an orchestrator with just enough wiring to parse
func parserFixture(t *testing.T) *Orchestrator {
	t.Helper()
	return &Orchestrator{artifacts: NewArtifactStore(t.TempDir())}
}

func TestInterpretResponseEmptyBody(t *testing.T) {
	outcome := interpretResponse(rawResponse(nil, ""))

	assert.Equal(t, outcomeProcessing, outcome.kind)
	assert.Empty(t, outcome.pollURL)
}

func TestInterpretResponseRawBody(t *testing.T) {
	outcome := interpretResponse(rawResponse([]byte{0x00, 0x01}, "video/mp4"))

	assert.Equal(t, outcomeImmediate, outcome.kind)
	assert.Equal(t, []byte{0x00, 0x01}, outcome.data)
}

func TestInterpretResponseProcessingEnvelope(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{
		"status":      "processing",
		"pollUrl":     "/executions/abc",
		"executionId": "abc",
	}))

	assert.Equal(t, outcomeProcessing, outcome.kind)
	assert.Equal(t, "/executions/abc", outcome.pollURL)
	assert.Equal(t, "abc", outcome.remoteID)
}

func TestInterpretResponseFailedEnvelope(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{
		"status":  "failed",
		"message": "workflow exploded",
	}))

	assert.Equal(t, outcomeFailed, outcome.kind)
	assert.Equal(t, "workflow exploded", outcome.message)
}

func TestInterpretResponseFailedEnvelopeWithoutMessage(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{"status": "failed"}))

	assert.Equal(t, outcomeFailed, outcome.kind)
	assert.NotEmpty(t, outcome.message)
}

func TestInterpretResponseCompletedEnvelope(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{
		"status":   "completed",
		"data":     "https://cdn.example.com/out.mp4",
		"metadata": map[string]interface{}{"duration": 5},
	}))

	assert.Equal(t, outcomeImmediate, outcome.kind)
	assert.Equal(t, "https://cdn.example.com/out.mp4", outcome.data)
	assert.Equal(t, float64(5), outcome.metadata["duration"])
}

func TestInterpretResponseCompletedEnvelopeWithoutData(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{"status": "completed"}))

	assert.Equal(t, outcomeImmediate, outcome.kind)
	obj, ok := outcome.data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", obj["status"])
}

func TestInterpretResponsePlainObjectIsImmediate(t *testing.T) {
	outcome := interpretResponse(jsonResponse(map[string]interface{}{
		"url":      "https://cdn.example.com/out.mp4",
		"duration": 5,
	}))

	assert.Equal(t, outcomeImmediate, outcome.kind)
	obj, ok := outcome.data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/out.mp4", obj["url"])
}

func TestInterpretResponseNonObjectJSON(t *testing.T) {
	outcome := interpretResponse(jsonResponse([]interface{}{"a", "b"}))

	assert.Equal(t, outcomeImmediate, outcome.kind)
	assert.Equal(t, []interface{}{"a", "b"}, outcome.data)
}

func TestParseMediaOutputURLString(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputVideo, engineOutcome{
		kind: outcomeImmediate,
		data: "https://cdn.example.com/out.mp4",
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, execution.OutputVideo, out.Type)
	assert.Equal(t, "https://cdn.example.com/out.mp4", out.Data)
}

func TestParseMediaOutputObjectWithURL(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputVideo, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{
			"url":      "https://cdn.example.com/out.mp4",
			"duration": float64(5),
			"filename": "out.mp4",
		},
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.mp4", out.Data)
	assert.Equal(t, float64(5), out.Metadata["duration"])
	assert.Equal(t, "out.mp4", out.Metadata["filename"])
}

func TestParseMediaOutputObjectWithTypedURLKey(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputImage, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{"imageUrl": "https://cdn.example.com/out.png"},
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.png", out.Data)
}

func TestParseMediaOutputBinaryFieldPassesThrough(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputImage, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{
			"binary":   "aGVsbG8=",
			"fileSize": float64(5),
		},
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", out.Data)
	assert.Equal(t, float64(5), out.Metadata["fileSize"])
}

func TestParseMediaOutputRawBodyStoredAsArtifact(t *testing.T) {
	o := parserFixture(t)
	body := []byte{0x89, 0x50, 0x4e, 0x47}

	out, err := o.parseOutput(execution.OutputImage, engineOutcome{
		kind: outcomeImmediate,
		data: body,
	}, "application/octet-stream")

	require.NoError(t, err)
	url, ok := out.Data.(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(url, "file://"), "expected a file URL, got %s", url)

	stored, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	require.NoError(t, err)
	assert.Equal(t, body, stored)
	assert.Equal(t, len(body), out.Metadata["fileSize"])
	assert.Equal(t, "application/octet-stream", out.Metadata["mimeType"])
}

func TestParseMediaOutputMergesEnvelopeMetadata(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputVideo, engineOutcome{
		kind:     outcomeImmediate,
		data:     map[string]interface{}{"url": "https://cdn.example.com/out.mp4", "duration": float64(9)},
		metadata: map[string]interface{}{"duration": float64(5), "resolution": "1080p"},
	}, "application/json")

	require.NoError(t, err)
	// Object descriptors overlay envelope metadata
	assert.Equal(t, float64(9), out.Metadata["duration"])
	assert.Equal(t, "1080p", out.Metadata["resolution"])
}

func TestParseMediaOutputWithoutUsablePayload(t *testing.T) {
	o := parserFixture(t)

	_, err := o.parseOutput(execution.OutputVideo, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{"note": "nothing here"},
	}, "application/json")

	require.Error(t, err)
}

func TestParseTextOutputString(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputText, engineOutcome{
		kind: outcomeImmediate,
		data: "hello there",
	}, "text/plain")

	require.NoError(t, err)
	assert.Equal(t, execution.OutputText, out.Type)
	assert.Equal(t, "hello there", out.Data)
}

func TestParseTextOutputCoercesNonStrings(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputText, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{"answer": float64(42)},
	}, "application/json")

	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":42}`, out.Data.(string))
}

func TestParseJSONOutputObject(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputJSON, engineOutcome{
		kind: outcomeImmediate,
		data: map[string]interface{}{"answer": float64(42)},
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"answer": float64(42)}, out.Data)
}

func TestParseJSONOutputParsesStrings(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputJSON, engineOutcome{
		kind: outcomeImmediate,
		data: `{"answer": 42}`,
	}, "application/json")

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"answer": float64(42)}, out.Data)
}

func TestParseJSONOutputKeepsUnparseableStrings(t *testing.T) {
	o := parserFixture(t)

	out, err := o.parseOutput(execution.OutputJSON, engineOutcome{
		kind: outcomeImmediate,
		data: "not json at all",
	}, "text/plain")

	require.NoError(t, err)
	assert.Equal(t, "not json at all", out.Data)
}
