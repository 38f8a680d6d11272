// Package queryengine implements the query engine and re-ranker of spec
// §4.5: embed the query, fetch over-fetched candidates from the vector
// store, then re-rank by path relevance and file category.
package queryengine

import (
	"path"
	"strings"
	"unicode"
)

// PathRelevanceWeights are the default multipliers of spec §4.5's table.
type PathRelevanceWeights struct {
	FilenameExactMatch   float64
	FilenameContains     float64
	StemExactMatch       float64
	StemContains         float64
	DirExactMatch        float64
	DirContains          float64
	DirDepthDecay        float64
	PathTokenInQuery     float64
	MinTokenLength       int
}

// DefaultPathRelevanceWeights returns spec §4.5's default multiplier table.
func DefaultPathRelevanceWeights() PathRelevanceWeights {
	return PathRelevanceWeights{
		FilenameExactMatch: 2.0,
		FilenameContains:   1.5,
		StemExactMatch:     1.8,
		StemContains:       1.35,
		DirExactMatch:      1.2,
		DirContains:        1.1,
		DirDepthDecay:      0.9,
		PathTokenInQuery:   1.3,
		MinTokenLength:     3,
	}
}

// ParsedPath is a file path broken into the components the scorer matches
// against (spec §4.5's "filename, stem, extension, dir_components... and a
// set of path tokens").
type ParsedPath struct {
	Path          string
	Filename      string
	Stem          string
	Extension     string
	DirComponents []string // most-specific first
	Tokens        map[string]struct{}
}

// PathRelevanceScorer computes the path-relevance multiplier for a
// candidate file path against a search query, ported from the original
// implementation's path_relevance scorer (original_source/src/vectordb/
// path_relevance.rs) into the weight table spec §4.5 actually specifies.
type PathRelevanceScorer struct {
	weights PathRelevanceWeights
}

// NewPathRelevanceScorer creates a scorer using the default weight table.
func NewPathRelevanceScorer() *PathRelevanceScorer {
	return &PathRelevanceScorer{weights: DefaultPathRelevanceWeights()}
}

// NewPathRelevanceScorerWithWeights creates a scorer using a custom weight
// table.
func NewPathRelevanceScorerWithWeights(w PathRelevanceWeights) *PathRelevanceScorer {
	return &PathRelevanceScorer{weights: w}
}

// ParsePath breaks filePath into its matchable components.
func (s *PathRelevanceScorer) ParsePath(filePath string) ParsedPath {
	normalized := filepathToSlash(filePath)
	filename := strings.ToLower(path.Base(normalized))
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	stem := filename
	if ext != "" {
		stem = strings.TrimSuffix(filename, "."+ext)
	}

	var dirComponents []string
	dir := path.Dir(normalized)
	for dir != "." && dir != "/" && dir != "" {
		base := path.Base(dir)
		if base != "" {
			dirComponents = append(dirComponents, strings.ToLower(base))
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	minLen := s.weights.MinTokenLength
	tokens := make(map[string]struct{})
	addTokens := func(str string) {
		for _, tok := range tokenize(str) {
			if len(tok) >= minLen {
				tokens[tok] = struct{}{}
			}
		}
	}
	addTokens(filename)
	addTokens(stem)
	for _, c := range dirComponents {
		addTokens(c)
	}

	return ParsedPath{
		Path:          normalized,
		Filename:      filename,
		Stem:          stem,
		Extension:     ext,
		DirComponents: dirComponents,
		Tokens:        tokens,
	}
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// tokenize splits on camelCase, snake_case, and kebab-case boundaries,
// lower-cased, plus the whole input itself as one token (so "readme"
// matches a filename-exact check even with no internal boundaries).
func tokenize(input string) []string {
	var camelParts []string
	var current strings.Builder
	runes := []rune(input)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && current.Len() > 0 {
			camelParts = append(camelParts, current.String())
			current.Reset()
		}
		current.WriteRune(unicode.ToLower(r))
	}
	if current.Len() > 0 {
		camelParts = append(camelParts, current.String())
	}

	var tokens []string
	for _, part := range camelParts {
		for _, snakePart := range strings.Split(part, "_") {
			if snakePart == "" {
				continue
			}
			for _, kebabPart := range strings.Split(snakePart, "-") {
				if kebabPart != "" {
					tokens = append(tokens, kebabPart)
				}
			}
		}
	}
	tokens = append(tokens, strings.ToLower(input))
	return tokens
}

// Score computes the path-relevance multiplier for parsed against query,
// per spec §4.5's weight table. The base multiplier is 1.0; every
// matching query token multiplies the score further. The path-token
// fallback only applies when no filename/stem/directory signal fired for
// any query token, per the table's "(and no stronger match fired)"
// qualifier.
func (s *PathRelevanceScorer) Score(parsed ParsedPath, query string) float64 {
	w := s.weights
	queryLower := strings.ToLower(query)
	queryTokens := strings.Fields(queryLower)

	score := 1.0
	strongMatch := false

	for _, qt := range queryTokens {
		if len(qt) < w.MinTokenLength {
			continue
		}

		if parsed.Filename == qt {
			score *= w.FilenameExactMatch
			strongMatch = true
		} else if strings.Contains(parsed.Filename, qt) {
			score *= w.FilenameContains
			strongMatch = true
		}

		if parsed.Stem == qt {
			score *= w.StemExactMatch
			strongMatch = true
		} else if strings.Contains(parsed.Stem, qt) {
			score *= w.StemContains
			strongMatch = true
		}

		for depth, component := range parsed.DirComponents {
			decay := pow(w.DirDepthDecay, depth)
			if component == qt {
				score *= w.DirExactMatch * decay
				strongMatch = true
			} else if strings.Contains(component, qt) {
				score *= w.DirContains * decay
				strongMatch = true
			}
		}
	}

	if !strongMatch {
		for token := range parsed.Tokens {
			if len(token) >= w.MinTokenLength && strings.Contains(queryLower, token) {
				score *= w.PathTokenInQuery
				break
			}
		}
	}

	return score
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
