package parsers

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// PythonParser extracts top-level functions, classes and imports from
// Python source using a line-oriented regex approach.
type PythonParser struct {
	functionRegex *regexp.Regexp
	classRegex    *regexp.Regexp
	importRegex   *regexp.Regexp
	fromRegex     *regexp.Regexp
}

// NewPythonParser creates a new Python parser.
func NewPythonParser() *PythonParser {
	return &PythonParser{
		functionRegex: regexp.MustCompile(`^(?:async\s+)?def\s+(\w+)\s*\(`),
		classRegex:    regexp.MustCompile(`^class\s+(\w+)\s*[(:]`),
		importRegex:   regexp.MustCompile(`^import\s+(.+)`),
		fromRegex:     regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)`),
	}
}

// Language returns the language this parser handles.
func (p *PythonParser) Language() string { return "python" }

// Extensions returns the file extensions this parser accepts.
func (p *PythonParser) Extensions() []string { return []string{".py"} }

// Parse extracts elements from Python source. Only top-level
// definitions become function/class elements; their end line is the
// last non-blank line before the next top-level statement.
func (p *PythonParser) Parse(filePath string, content []byte) ([]Element, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, fmt.Errorf("parsing %s: binary content", filePath)
	}

	lines := strings.Split(string(content), "\n")
	var elements []Element

	for i, line := range lines {
		lineNo := i + 1

		if m := p.importRegex.FindStringSubmatch(line); m != nil {
			for _, name := range splitImportList(m[1]) {
				elements = append(elements, Element{
					Kind: ElementImport, Name: name, StartLine: lineNo, EndLine: lineNo,
				})
			}
			continue
		}
		if m := p.fromRegex.FindStringSubmatch(line); m != nil {
			if name := strings.TrimLeft(m[1], "."); name != "" {
				elements = append(elements, Element{
					Kind: ElementImport, Name: name, StartLine: lineNo, EndLine: lineNo,
				})
			} else {
				// `from . import x, y` imports sibling modules: the
				// imported names are the module names to resolve.
				for _, name := range splitImportList(m[2]) {
					elements = append(elements, Element{
						Kind: ElementImport, Name: name, StartLine: lineNo, EndLine: lineNo,
					})
				}
			}
			continue
		}

		if m := p.functionRegex.FindStringSubmatch(line); m != nil {
			elements = append(elements, Element{
				Kind: ElementFunction, Name: m[1], StartLine: lineNo, EndLine: blockEnd(lines, i),
			})
			continue
		}
		if m := p.classRegex.FindStringSubmatch(line); m != nil {
			elements = append(elements, Element{
				Kind: ElementClass, Name: m[1], StartLine: lineNo, EndLine: blockEnd(lines, i),
			})
		}
	}

	return elements, nil
}

// splitImportList handles `import a, b.c as d`: each comma-separated
// entry contributes its module path, aliases stripped.
func splitImportList(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, " as "); idx >= 0 {
			part = part[:idx]
		}
		part = strings.TrimSpace(strings.TrimLeft(part, "."))
		// Trailing comments or line-continuation noise invalidate the
		// entry rather than producing a garbage module name.
		if part == "" || strings.ContainsAny(part, " \t#\\") {
			continue
		}
		names = append(names, part)
	}
	return names
}

// blockEnd returns the 1-indexed last non-blank line of the top-level
// block starting at lines[start].
func blockEnd(lines []string, start int) int {
	end := start
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		// A non-indented, non-blank line ends the block.
		if !strings.HasPrefix(lines[i], " ") && !strings.HasPrefix(lines[i], "\t") {
			break
		}
		end = i
	}
	return end + 1
}
