package orchestrator

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultArtifactsDir holds binary payloads when no directory is configured
const DefaultArtifactsDir = "artifacts"

// ArtifactStore writes raw binary engine payloads to local files so
// outputs can address them as file:// URLs
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates an artifact store rooted at dir
func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = DefaultArtifactsDir
	}
	return &ArtifactStore{dir: dir}
}

// Store writes data to a new file and returns its file:// URL along with
// size and MIME metadata
func (s *ArtifactStore) Store(data []byte, contentType string) (string, map[string]interface{}, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	name := uuid.New().String() + extensionFor(contentType)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	meta := map[string]interface{}{
		"fileSize": len(data),
		"mimeType": contentType,
	}
	return "file://" + abs, meta, nil
}

// extensionFor picks a filename extension for a MIME type
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return ".bin"
	}
	if exts, extErr := mime.ExtensionsByType(mediaType); extErr == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
