package execution

// OutputType discriminates how output data should be interpreted
type OutputType string

// Output types
const (
	// OutputVideo means data is a video URL (http(s) or file scheme)
	OutputVideo OutputType = "video"

	// OutputImage means data is an image URL (http(s) or file scheme)
	OutputImage OutputType = "image"

	// OutputText means data is a plain string
	OutputText OutputType = "text"

	// OutputJSON means data is an arbitrary decoded JSON value
	OutputJSON OutputType = "json"
)

// Output is the tagged result of a completed execution. Consumers switch
// on Type; they never inspect the shape of Data directly.
type Output struct {
	// Type discriminates the union
	Type OutputType `json:"type"`

	// Data is a URL string, a plain string, or a decoded JSON value
	// depending on Type
	Data interface{} `json:"data"`

	// Metadata carries free-form descriptors such as filename, fileSize,
	// duration, resolution, description, mimeType
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewVideoOutput creates a video output pointing at a URL
func NewVideoOutput(url string, metadata map[string]interface{}) *Output {
	return &Output{Type: OutputVideo, Data: url, Metadata: metadata}
}

// NewImageOutput creates an image output pointing at a URL
func NewImageOutput(url string, metadata map[string]interface{}) *Output {
	return &Output{Type: OutputImage, Data: url, Metadata: metadata}
}

// NewTextOutput creates a plain text output
func NewTextOutput(text string) *Output {
	return &Output{Type: OutputText, Data: text}
}

// NewJSONOutput creates an output carrying a decoded JSON value
func NewJSONOutput(value interface{}) *Output {
	return &Output{Type: OutputJSON, Data: value}
}

// Clone returns a copy of the output with its own metadata map
func (o *Output) Clone() *Output {
	if o == nil {
		return nil
	}

	clone := &Output{Type: o.Type, Data: o.Data}
	if o.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(o.Metadata))
		for k, v := range o.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// URL returns the output data as a string when the output addresses a
// resource by URL, and "" otherwise
func (o *Output) URL() string {
	if o == nil {
		return ""
	}
	if s, ok := o.Data.(string); ok {
		return s
	}
	return ""
}
