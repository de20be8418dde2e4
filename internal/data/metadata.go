package data

import (
	"time"

	"github.com/cockroachdb/errors"
)

const ChecksumSHA256 = "sha256"

// ArtifactMetadata is the integrity record written beside an accepted
// artifact. It is never rewritten once the Validator has produced it.
type ArtifactMetadata struct {
	SourceName        string    `json:"source_name"`
	Title             string    `json:"title,omitempty"`
	ExtractionTime    time.Time `json:"extraction_time"`
	FileSizeMB        float64   `json:"file_size_mb"`
	SizeBytes         int64     `json:"size_bytes"`
	Checksum          string    `json:"checksum"`
	ChecksumAlgorithm string    `json:"checksum_algorithm"`
	URL               string    `json:"url"`
}

// NewArtifactMetadata builds a metadata record for an artifact of size bytes
// whose digest is checksum (lower-case hex).
func NewArtifactMetadata(src SourceDescriptor, extractedAt time.Time, size int64, checksum string) (ArtifactMetadata, error) {
	if src.Name == "" {
		return ArtifactMetadata{}, errors.New("artifact metadata: empty source name")
	}
	if size <= 0 {
		return ArtifactMetadata{}, errors.Newf("artifact metadata: size must be > 0, got %d", size)
	}
	if checksum == "" {
		return ArtifactMetadata{}, errors.New("artifact metadata: empty checksum")
	}
	return ArtifactMetadata{
		SourceName:        src.Name,
		Title:             src.Title,
		ExtractionTime:    extractedAt.UTC(),
		FileSizeMB:        BytesToMB(size),
		SizeBytes:         size,
		Checksum:          checksum,
		ChecksumAlgorithm: ChecksumSHA256,
		URL:               src.Address,
	}, nil
}
