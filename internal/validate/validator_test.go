package validate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(t *testing.T, sizeMB float64) data.SourceDescriptor {
	t.Helper()
	d, err := data.NewSourceDescriptor("boe_rd171", "https://www.boe.es/a.pdf", data.FormatPDF, sizeMB, 3, time.Time{})
	require.NoError(t, err)
	return d.WithTitle("BOE")
}

func writeFile(t *testing.T, dir string, n int) string {
	t.Helper()
	p := filepath.Join(dir, "boe_rd171.pdf")
	require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte("x"), n), 0o644))
	return p
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		sizeMB float64
		write  int // -1 means no file
	}{
		{name: "missing file", sizeMB: 1, write: -1},
		{name: "zero bytes", sizeMB: 0, write: 0},
		{name: "undersized 0.1 of 2.5 MB", sizeMB: 2.5, write: 100 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := filepath.Join(dir, "boe_rd171.pdf")
			if tt.write >= 0 {
				p = writeFile(t, dir, tt.write)
			}

			_, err := New().Validate(p, source(t, tt.sizeMB))
			require.Error(t, err)
			assert.True(t, errors.Is(err, data.ErrInvalidArtifact), "got %v", err)
			assert.NoFileExists(t, filepath.Join(dir, "boe_rd171.metadata.json"))
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	dir := t.TempDir()
	src := source(t, 0.01)
	size := int(0.1*float64(src.ExpectedSizeBytes())) + 1
	p := writeFile(t, dir, size)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	meta, err := New(WithClock(func() time.Time { return at })).Validate(p, src)
	require.NoError(t, err)

	sum := sha256.Sum256(bytes.Repeat([]byte("x"), size))
	assert.Equal(t, hex.EncodeToString(sum[:]), meta.Checksum)
	assert.Equal(t, int64(size), meta.SizeBytes)
	assert.Equal(t, at, meta.ExtractionTime)
	assert.Equal(t, "BOE", meta.Title)

	onDisk, err := ReadMetadata(filepath.Join(dir, "boe_rd171.metadata.json"))
	require.NoError(t, err)
	assert.Equal(t, meta, onDisk)

	raw, err := os.ReadFile(filepath.Join(dir, "boe_rd171.metadata.json"))
	require.NoError(t, err)
	for _, key := range []string{`"source_name"`, `"extraction_time"`, `"file_size_mb"`, `"checksum"`, `"url"`} {
		assert.Contains(t, string(raw), key)
	}
}

func TestValidate_CustomRatio(t *testing.T) {
	dir := t.TempDir()
	src := source(t, 1)
	p := writeFile(t, dir, 1024)

	_, err := New(WithMinSizeRatio(0)).Validate(p, src)
	require.NoError(t, err)
}
