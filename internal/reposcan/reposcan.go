// Package reposcan builds a textual map of a repository's code elements
// for the repository_map tool: per-file symbol listings plus aggregate
// counts by file type and element type.
package reposcan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sagittacore/sagitta/internal/chunk"
	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/scanner"
)

// Verbosity controls how much detail a file's entry in the map includes.
type Verbosity int

const (
	// VerbosityMinimal lists element names only.
	VerbosityMinimal Verbosity = 0
	// VerbosityNormal adds line ranges.
	VerbosityNormal Verbosity = 1
	// VerbosityDetailed adds doc comments.
	VerbosityDetailed Verbosity = 2
)

// Options configures one Map call.
type Options struct {
	Verbosity     Verbosity
	Paths         []string // restrict the scan to these relative paths/subtrees; empty = whole repo
	FileExtension string   // restrict to files with this extension (no leading dot); empty = all
}

// Summary aggregates counts across the scanned repository.
type Summary struct {
	FilesScanned   int
	ElementsFound  int
	FileTypes      map[string]int
	ElementTypes   map[string]int
}

// Result is the complete output of a Map call.
type Result struct {
	MapContent string
	Summary    Summary
}

// elementIcon mirrors the per-element-type glyphs a repository map marks
// its entries with, so a verbose map reads as a quick visual index.
var elementIcon = map[chunk.ElementType]string{
	chunk.ElementFunction:        "\U0001F527", // wrench
	chunk.ElementMethod:          "\U0001F527",
	chunk.ElementClass:           "\U0001F3DB", // classical building
	chunk.ElementStruct:          "\U0001F4E6", // package
	chunk.ElementEnum:            "\U0001F522", // input numbers
	chunk.ElementTrait:           "\U0001F9E9", // puzzle piece
	chunk.ElementImpl:            "\U0001F528", // hammer
	chunk.ElementModule:          "\U0001F4C1", // folder
	chunk.ElementInterface:       "\U0001F50C", // plug
	chunk.ElementNamespace:       "\U0001F4C2", // open folder
	chunk.ElementTypeAlias:       "\U0001F3F7", // label
	chunk.ElementConst:           "\U0001F4CC", // pushpin
	chunk.ElementStatic:          "\U0001F4CC",
}

const defaultIcon = "\U0001F4C4" // page facing up

// Scanner walks a repository working tree and renders its element map.
type Scanner struct {
	chunker Chunker
	cache   *lru.Cache[string, *Result]
}

// Chunker is the subset of chunk.MultiChunker reposcan depends on.
type Chunker interface {
	Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error)
	IsSupported(path string) bool
}

// NewScanner creates a Scanner caching up to cacheSize recent maps, keyed
// on repository path plus options.
func NewScanner(chunker Chunker, cacheSize int) (*Scanner, error) {
	if cacheSize <= 0 {
		cacheSize = 32
	}
	cache, err := lru.New[string, *Result](cacheSize)
	if err != nil {
		return nil, errors.InternalError("create repository map cache", err)
	}
	return &Scanner{chunker: chunker, cache: cache}, nil
}

// Map scans repoPath and renders its element map per opts.
func (s *Scanner) Map(ctx context.Context, repoPath string, opts Options) (*Result, error) {
	key := cacheKey(repoPath, opts)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, errors.InternalError("create file scanner", err)
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          repoPath,
		IncludePatterns:  pathPatterns(opts.Paths),
		RespectGitignore: true,
	})
	if err != nil {
		return nil, errors.InternalError("scan repository", err)
	}

	type fileMap struct {
		path     string
		language string
		chunks   []*chunk.Chunk
	}
	var files []fileMap

	summary := Summary{FileTypes: make(map[string]int), ElementTypes: make(map[string]int)}

	for r := range results {
		if r.Error != nil || r.File == nil {
			continue
		}
		if opts.FileExtension != "" && extensionOf(r.File.Path) != opts.FileExtension {
			continue
		}
		if !s.chunker.IsSupported(r.File.Path) {
			continue
		}

		content, err := os.ReadFile(r.File.AbsPath)
		if err != nil {
			continue
		}

		chunks, err := s.chunker.Chunk(ctx, &chunk.FileInput{Path: r.File.Path, Content: content, Language: r.File.Language})
		if err != nil || len(chunks) == 0 {
			continue
		}

		summary.FilesScanned++
		summary.FileTypes[extensionOf(r.File.Path)]++
		for _, c := range chunks {
			if c.ElementType == chunk.ElementFallback {
				continue
			}
			summary.ElementsFound++
			summary.ElementTypes[string(c.ElementType)]++
		}

		files = append(files, fileMap{path: r.File.Path, language: r.File.Language, chunks: chunks})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s\n", f.path)
		for _, c := range f.chunks {
			if c.ElementType == chunk.ElementFallback {
				continue
			}
			s.renderChunk(&b, c, opts.Verbosity)
		}
	}

	result := &Result{MapContent: b.String(), Summary: summary}
	s.cache.Add(key, result)
	return result, nil
}

func (s *Scanner) renderChunk(b *strings.Builder, c *chunk.Chunk, verbosity Verbosity) {
	icon, ok := elementIcon[c.ElementType]
	if !ok {
		icon = defaultIcon
	}
	name := symbolName(c)

	switch {
	case verbosity >= VerbosityNormal:
		fmt.Fprintf(b, "  %s %s (%s:%d-%d)\n", icon, name, c.ElementType, c.StartLine, c.EndLine)
	default:
		fmt.Fprintf(b, "  %s %s\n", icon, name)
	}

	if verbosity >= VerbosityDetailed {
		if doc := docComment(c); doc != "" {
			fmt.Fprintf(b, "    \U0001F4DD %s\n", doc)
		}
	}
}

func symbolName(c *chunk.Chunk) string {
	if len(c.Symbols) > 0 && c.Symbols[0].Name != "" {
		return c.Symbols[0].Name
	}
	return string(c.ElementType)
}

func docComment(c *chunk.Chunk) string {
	if len(c.Symbols) > 0 {
		return strings.TrimSpace(c.Symbols[0].DocComment)
	}
	return ""
}

func extensionOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func pathPatterns(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	patterns := make([]string, len(paths))
	for i, p := range paths {
		patterns[i] = filepath.ToSlash(p) + "/**"
	}
	return patterns
}

func cacheKey(repoPath string, opts Options) string {
	return fmt.Sprintf("%s|%d|%s|%s", repoPath, opts.Verbosity, strings.Join(opts.Paths, ","), opts.FileExtension)
}
