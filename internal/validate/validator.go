// Package validate gates fetched artifacts on structural integrity and
// writes their metadata records.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultMinSizeRatio rejects artifacts smaller than 10% of the declared size.
const DefaultMinSizeRatio = 0.1

// Validator checks artifact size and writes a SHA-256 metadata record beside
// each accepted artifact. It never looks at the content's meaning.
type Validator struct {
	minSizeRatio float64
	now          func() time.Time
	log          *zap.SugaredLogger
}

type Option func(*Validator)

func WithMinSizeRatio(r float64) Option {
	return func(v *Validator) { v.minSizeRatio = r }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		minSizeRatio: DefaultMinSizeRatio,
		now:          time.Now,
		log:          zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate accepts or rejects the artifact at path. Rejections wrap
// data.ErrInvalidArtifact and leave the file in place; the caller owns
// cleanup. On acceptance the metadata record is written next to path.
func (v *Validator) Validate(path string, src data.SourceDescriptor) (data.ArtifactMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data.ArtifactMetadata{}, errors.Wrapf(data.ErrInvalidArtifact, "%s: artifact %s does not exist", src.Name, path)
		}
		return data.ArtifactMetadata{}, errors.Wrapf(err, "%s: stat artifact", src.Name)
	}
	if info.IsDir() {
		return data.ArtifactMetadata{}, errors.Wrapf(data.ErrInvalidArtifact, "%s: artifact %s is a directory", src.Name, path)
	}
	size := info.Size()
	if size == 0 {
		return data.ArtifactMetadata{}, errors.Wrapf(data.ErrInvalidArtifact, "%s: artifact is empty", src.Name)
	}
	if minBytes := v.minSizeRatio * float64(src.ExpectedSizeBytes()); float64(size) < minBytes {
		return data.ArtifactMetadata{}, errors.Wrapf(data.ErrInvalidArtifact,
			"%s: artifact is %.3f MB, below %.0f%% of expected %.3f MB",
			src.Name, data.BytesToMB(size), v.minSizeRatio*100, src.ExpectedSizeMB)
	}

	sum, n, err := checksum(path)
	if err != nil {
		return data.ArtifactMetadata{}, errors.Wrapf(err, "%s: checksum artifact", src.Name)
	}
	meta, err := data.NewArtifactMetadata(src, v.now(), n, sum)
	if err != nil {
		return data.ArtifactMetadata{}, err
	}
	metaPath := MetadataPath(path, src)
	if err := writeMetadata(metaPath, meta); err != nil {
		return data.ArtifactMetadata{}, errors.Wrapf(err, "%s: write metadata", src.Name)
	}

	v.log.Debugw("artifact accepted", "source", src.Name, "size_bytes", n, "checksum", sum)
	return meta, nil
}

// MetadataPath is the metadata record location for an artifact at path.
func MetadataPath(path string, src data.SourceDescriptor) string {
	return filepath.Join(filepath.Dir(path), src.MetadataFileName())
}

func checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func writeMetadata(path string, meta data.ArtifactMetadata) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadMetadata loads a metadata record written by Validate.
func ReadMetadata(path string) (data.ArtifactMetadata, error) {
	var meta data.ArtifactMetadata
	b, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, errors.Wrapf(err, "decode metadata %s", path)
	}
	return meta, nil
}
