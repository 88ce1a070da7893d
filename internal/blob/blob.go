// Package blob abstracts the object storage holding source files and page
// rasters. Backends: Google Cloud Storage, S3-compatible (MinIO), and the
// local filesystem for development.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the narrow blob capability the pipeline consumes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// NewKey derives a storage key for an uploaded file: year/month prefix plus a
// short unique id, keeping the original extension.
func NewKey(originalFilename string) string {
	now := time.Now().UTC()
	ext := "bin"
	if i := strings.LastIndex(originalFilename, "."); i >= 0 && i < len(originalFilename)-1 {
		ext = originalFilename[i+1:]
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d/%02d/%s.%s", now.Year(), now.Month(), id, ext)
}

// PageKey derives the key for a stored page raster from the source key:
// the source key minus its extension, plus a pages/NNNN.png suffix.
func PageKey(sourceKey string, pageNumber int) string {
	base := sourceKey
	if i := strings.LastIndex(sourceKey, "."); i >= 0 {
		base = sourceKey[:i]
	}
	return fmt.Sprintf("%s/pages/%04d.png", base, pageNumber)
}
