package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// MultiChunker dispatches to the appropriate Chunker by file extension:
// CodeChunker for tree-sitter-backed languages, MarkdownChunker for
// md/mdx, YAMLChunker for yaml/yml. This is the single entry point the
// sync engine drives per file (spec §4.1's "Contract: parse(source,
// language) -> ordered list of Chunk" applied across the whole extension
// set of spec §4.4).
type MultiChunker struct {
	code     *CodeChunker
	markdown *MarkdownChunker
	yaml     *YAMLChunker
}

// NewMultiChunker builds a dispatcher over a fresh CodeChunker (its own
// parser/extractor/registry), MarkdownChunker, and YAMLChunker.
func NewMultiChunker() *MultiChunker {
	return &MultiChunker{
		code:     NewCodeChunker(),
		markdown: NewMarkdownChunker(),
		yaml:     NewYAMLChunker(),
	}
}

// Close releases the underlying tree-sitter parser resources.
func (m *MultiChunker) Close() {
	m.code.Close()
}

// SupportedExtensions returns the union of every wrapped chunker's
// extensions, which in turn defines the file-supported-check of spec
// §4.4 ("a fixed closed set of extensions... plus any others the parser
// set supports").
func (m *MultiChunker) SupportedExtensions() []string {
	var exts []string
	exts = append(exts, m.code.SupportedExtensions()...)
	exts = append(exts, m.markdown.SupportedExtensions()...)
	exts = append(exts, m.yaml.SupportedExtensions()...)
	return exts
}

// IsSupported reports whether path's extension is handled by any of the
// wrapped chunkers.
func (m *MultiChunker) IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range m.SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}

// Chunk dispatches file to the chunker matching its extension. Files with
// an unsupported extension are not expected to reach this point (the
// caller filters with IsSupported first) and fall through to the code
// chunker's own fallback line-windowing.
func (m *MultiChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	ext := strings.ToLower(filepath.Ext(file.Path))
	switch ext {
	case ".md", ".markdown", ".mdx":
		return m.markdown.Chunk(ctx, file)
	case ".yaml", ".yml":
		return m.yaml.Chunk(ctx, file)
	default:
		return m.code.Chunk(ctx, file)
	}
}
