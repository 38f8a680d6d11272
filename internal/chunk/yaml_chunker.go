package chunk

import (
	"context"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLChunker splits a YAML document into its top-level and named
// definitions, one chunk per mapping key at the root (spec §4.1's "YAML:
// top-level and named definitions"). It uses yaml.v3's node line
// information rather than tree-sitter, following the donor's
// MarkdownChunker's own regex/line-scan idiom for structural (non-code)
// formats — no tree-sitter-yaml grammar is in the dependency surface.
type YAMLChunker struct{}

// NewYAMLChunker creates a new YAML chunker.
func NewYAMLChunker() *YAMLChunker {
	return &YAMLChunker{}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *YAMLChunker) SupportedExtensions() []string {
	return []string{".yaml", ".yml"}
}

// Chunk splits file into one chunk per root-level mapping key, falling
// back to fixed-size line windows if the document fails to parse or has
// no mapping at its root (e.g. a bare scalar or list document).
func (c *YAMLChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(file.Content, &root); err != nil {
		return fallbackLineChunks(file, content), nil
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return fallbackLineChunks(file, content), nil
	}

	mapping := root.Content[0]
	lines := strings.Split(content, "\n")
	now := time.Now()

	var chunks []*Chunk
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]

		start := keyNode.Line
		end := nodeEndLine(valNode, len(lines))
		if end < start {
			end = start
		}

		body := strings.Join(lines[start-1:end], "\n")
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, body),
			FilePath:    file.Path,
			Content:     body,
			RawContent:  body,
			ContentType: ContentTypeText,
			Language:    "yaml",
			ElementType: ElementModule,
			StartLine:   start,
			EndLine:     end,
			Symbols: []*Symbol{{
				Name:      keyNode.Value,
				Type:      SymbolTypeVariable,
				Element:   ElementModule,
				StartLine: start,
				EndLine:   end,
			}},
			Metadata: map[string]string{"key": keyNode.Value},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if len(chunks) == 0 {
		return fallbackLineChunks(file, content), nil
	}
	return chunks, nil
}

// nodeEndLine estimates the last line a YAML node's value spans by
// walking to its deepest-nested last descendant's line, since yaml.v3
// nodes only record their own start line.
func nodeEndLine(n *yaml.Node, fileLineCount int) int {
	deepest := n.Line
	for _, child := range n.Content {
		if l := nodeEndLine(child, fileLineCount); l > deepest {
			deepest = l
		}
	}
	if deepest > fileLineCount {
		deepest = fileLineCount
	}
	return deepest
}

func fallbackLineChunks(file *FileInput, content string) []*Chunk {
	lines := strings.Split(content, "\n")
	now := time.Now()
	var chunks []*Chunk
	for start := 0; start < len(lines); start += FallbackWindowLines {
		end := start + FallbackWindowLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, body),
			FilePath:    file.Path,
			Content:     body,
			RawContent:  body,
			ContentType: ContentTypeText,
			Language:    "yaml",
			ElementType: ElementFallback,
			StartLine:   start + 1,
			EndLine:     end,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return chunks
}
