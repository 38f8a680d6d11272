package reposcan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagittacore/sagitta/internal/chunk"
)

func TestMapScansFilesAndAggregatesElementCounts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.go"), []byte("package main\n\nfunc helper() {}\n\nfunc other() {}\n"), 0o644))

	s, err := NewScanner(chunk.NewMultiChunker(), 8)
	require.NoError(t, err)

	result, err := s.Map(context.Background(), dir, Options{Verbosity: VerbosityNormal})
	require.NoError(t, err)

	require.Equal(t, 2, result.Summary.FilesScanned)
	require.GreaterOrEqual(t, result.Summary.ElementsFound, 3)
	require.Contains(t, result.MapContent, "main.go")
	require.Contains(t, result.MapContent, "util.go")
}

func TestMapFiltersByFileExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi\n\nsome text\n"), 0o644))

	s, err := NewScanner(chunk.NewMultiChunker(), 8)
	require.NoError(t, err)

	result, err := s.Map(context.Background(), dir, Options{FileExtension: "go"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Contains(t, result.Summary.FileTypes, "go")
	require.NotContains(t, result.Summary.FileTypes, "md")
}

func TestMapCachesResultForIdenticalOptions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	s, err := NewScanner(chunk.NewMultiChunker(), 8)
	require.NoError(t, err)

	first, err := s.Map(context.Background(), dir, Options{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.go"), []byte("package main\n\nfunc extra() {}\n"), 0o644))

	second, err := s.Map(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Equal(t, first.Summary.FilesScanned, second.Summary.FilesScanned)
}
