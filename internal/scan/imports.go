package scan

import (
	"regexp"
	"sort"
	"strings"
)

// Import is one module reference found in a source file.
type Import struct {
	Specifier string
	// Line is 1-based and points at the specifier literal.
	Line int
}

// SourceExtensions are the files whose imports are extracted by default.
var SourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

var importPatterns = []*regexp.Regexp{
	// import x from 'm'; export { y } from 'm'; import type { T } from 'm'
	regexp.MustCompile(`\bfrom\s*(['"])([^'"\n]+)(['"])`),
	// import 'm';
	regexp.MustCompile(`(?m)^\s*import\s*(['"])([^'"\n]+)(['"])`),
	// require('m'), import('m'), jest.mock('m')
	regexp.MustCompile(`\b(?:require|import|mock)\s*\(\s*(['"])([^'"\n]+)(['"])\s*[,)]`),
}

// ExtractImports returns the specifiers referenced by a JS/TS source, in
// source order. Comments are ignored; the scan is lexical, not a parse.
func ExtractImports(src []byte) []Import {
	text := blankComments(src)

	type hit struct {
		offset int
		spec   string
	}
	var hits []hit
	seen := map[int]bool{}
	for _, re := range importPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			// Groups: 1 opening quote, 2 specifier, 3 closing quote.
			if text[m[2]:m[3]] != text[m[6]:m[7]] {
				continue
			}
			start := m[4]
			if seen[start] {
				continue
			}
			seen[start] = true
			spec := strings.TrimSpace(text[m[4]:m[5]])
			if spec == "" {
				continue
			}
			hits = append(hits, hit{offset: start, spec: spec})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	out := make([]Import, 0, len(hits))
	line, pos := 1, 0
	for _, h := range hits {
		line += strings.Count(text[pos:h.offset], "\n")
		pos = h.offset
		out = append(out, Import{Specifier: h.spec, Line: line})
	}
	return out
}

// blankComments replaces // and /* */ comments with spaces, keeping
// newlines so offsets still map to the original lines. String and template
// literals are copied untouched.
func blankComments(src []byte) string {
	out := make([]byte, len(src))
	copy(out, src)
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote != 0 {
			switch {
			case c == '\\':
				i++
			case c == quote:
				quote = 0
			case c == '\n' && quote != '`':
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		}
	}
	return string(out)
}
