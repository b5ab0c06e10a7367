package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/transport"
)

// responseKind classifies what a 2xx engine answer means for the run
type responseKind int

const (
	// outcomeProcessing means the job is still running, or the answer
	// carried nothing actionable
	outcomeProcessing responseKind = iota

	// outcomeImmediate means payload data is present
	outcomeImmediate

	// outcomeFailed means the engine reported a failed job
	outcomeFailed
)

// engineOutcome is the interpreted form of an EngineResponse
type engineOutcome struct {
	kind     responseKind
	data     interface{}
	metadata map[string]interface{}
	pollURL  string
	remoteID string
	message  string
}

// interpretResponse classifies a 2xx engine answer. Non-JSON bodies are
// immediate raw payloads. JSON objects follow the job envelope contract;
// objects without a recognized status, and all other JSON values, are
// immediate payloads themselves.
func interpretResponse(resp *transport.EngineResponse) engineOutcome {
	if len(resp.Body) == 0 {
		return engineOutcome{kind: outcomeProcessing}
	}
	if !resp.IsJSON() {
		return engineOutcome{kind: outcomeImmediate, data: resp.Body}
	}

	env := resp.Envelope()
	if env == nil {
		return engineOutcome{kind: outcomeImmediate, data: resp.JSON}
	}

	switch env.Status {
	case transport.JobProcessing:
		return engineOutcome{
			kind:     outcomeProcessing,
			pollURL:  env.PollURL,
			remoteID: env.ExecutionID,
		}

	case transport.JobFailed:
		message := env.Message
		if message == "" {
			message = "engine reported a failed job"
		}
		return engineOutcome{kind: outcomeFailed, message: message}

	case transport.JobCompleted:
		data := env.Data
		if data == nil {
			data = resp.JSON
		}
		return engineOutcome{
			kind:     outcomeImmediate,
			data:     data,
			metadata: env.Metadata,
			remoteID: env.ExecutionID,
		}

	default:
		return engineOutcome{kind: outcomeImmediate, data: resp.JSON, metadata: env.Metadata}
	}
}

// mediaURLKeys are checked in order when a media payload is an object
var mediaURLKeys = []string{"url", "videoUrl", "imageUrl"}

// mediaDescriptorKeys are the fields copied off media payload objects
// into output metadata
var mediaDescriptorKeys = []string{"filename", "fileSize", "duration", "resolution", "description", "mimeType"}

// parseOutput turns interpreted payload data into a typed output per the
// agent's declared output schema
func (o *Orchestrator) parseOutput(outputType execution.OutputType, outcome engineOutcome, contentType string) (*execution.Output, error) {
	switch outputType {
	case execution.OutputVideo, execution.OutputImage:
		return o.parseMediaOutput(outputType, outcome, contentType)

	case execution.OutputText:
		out := execution.NewTextOutput(stringifyPayload(outcome.data))
		out.Metadata = outcome.metadata
		return out, nil

	case execution.OutputJSON:
		out := execution.NewJSONOutput(jsonPayload(outcome.data))
		out.Metadata = outcome.metadata
		return out, nil

	default:
		return nil, agenterrors.Newf(agenterrors.CodeUnknown, "unsupported output type %q", outputType)
	}
}

// parseMediaOutput resolves a video or image payload to a URL, storing
// raw binary bodies as local artifacts
func (o *Orchestrator) parseMediaOutput(outputType execution.OutputType, outcome engineOutcome, contentType string) (*execution.Output, error) {
	switch value := outcome.data.(type) {
	case string:
		return &execution.Output{Type: outputType, Data: value, Metadata: outcome.metadata}, nil

	case []byte:
		url, fileMeta, err := o.artifacts.Store(value, contentType)
		if err != nil {
			return nil, err
		}
		return &execution.Output{Type: outputType, Data: url, Metadata: mergeMetadata(outcome.metadata, fileMeta)}, nil

	case map[string]interface{}:
		meta := mergeMetadata(outcome.metadata, descriptorMetadata(value))
		for _, key := range mediaURLKeys {
			if url, ok := value[key].(string); ok && url != "" {
				return &execution.Output{Type: outputType, Data: url, Metadata: meta}, nil
			}
		}
		if binary, ok := value["binary"]; ok {
			return &execution.Output{Type: outputType, Data: binary, Metadata: meta}, nil
		}
		return nil, agenterrors.Newf(agenterrors.CodeUnknown, "%s payload carries no url or binary data", outputType)

	default:
		return nil, agenterrors.Newf(agenterrors.CodeUnknown, "%s payload has unexpected shape %T", outputType, outcome.data)
	}
}

// descriptorMetadata copies the known descriptor fields off a payload object
func descriptorMetadata(obj map[string]interface{}) map[string]interface{} {
	var meta map[string]interface{}
	for _, key := range mediaDescriptorKeys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		if meta == nil {
			meta = make(map[string]interface{})
		}
		meta[key] = value
	}
	return meta
}

// mergeMetadata overlays extra onto base without mutating either
func mergeMetadata(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return extra
	}
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// stringifyPayload renders payload data as text. Non-string values are
// coerced via JSON stringification.
func stringifyPayload(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// jsonPayload renders payload data as a decoded JSON value. String data
// is parsed; a parse failure keeps the raw string.
func jsonPayload(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return decoded
		}
		return v
	case []byte:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			return decoded
		}
		return string(v)
	default:
		return v
	}
}
