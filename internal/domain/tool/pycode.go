package tool

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
)

var errNoMain = errors.New("no async main entry point found")

// CodeIssue is one problem found by ValidateCode. Line is 1-based; 0 means
// the issue applies to the whole file.
type CodeIssue struct {
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

var (
	asyncMainPattern = regexp.MustCompile(`(?m)^[ \t]*async[ \t]+def[ \t]+main[ \t]*\(`)
	syncMainPattern  = regexp.MustCompile(`(?m)^[ \t]*def[ \t]+main[ \t]*\(`)
	importPattern    = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([^\n#]+)`)
	fromPattern      = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+([A-Za-z_][A-Za-z0-9_.]*)[ \t]+import`)
)

// ValidateCode structurally checks tool code without executing it: the
// entry point must be `async def main(...)` and brackets and string
// literals must be balanced. It is a gate against obviously broken
// submissions, not a Python parser; the sandbox rejects anything deeper.
func ValidateCode(code string) []CodeIssue {
	var issues []CodeIssue

	if strings.TrimSpace(code) == "" {
		return []CodeIssue{{Message: "code is empty"}}
	}

	if !asyncMainPattern.MatchString(code) {
		if syncMainPattern.MatchString(code) {
			issues = append(issues, CodeIssue{Message: "main must be declared async: use `async def main(...)`"})
		} else {
			issues = append(issues, CodeIssue{Message: "missing entry point: define `async def main(...)`"})
		}
	}

	issues = append(issues, scanStructure(code)...)
	return issues
}

// scanStructure walks the source tracking string and comment state, and
// checks bracket balance outside of them.
func scanStructure(code string) []CodeIssue {
	var issues []CodeIssue

	type open struct {
		ch   byte
		line int
	}
	var stack []open

	line := 1
	inComment := false
	inString := false
	var quote byte
	triple := false
	stringLine := 0

	match := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '\n' {
			line++
			inComment = false
			if inString && !triple {
				issues = append(issues, CodeIssue{Line: stringLine, Message: "unterminated string literal"})
				inString = false
			}
			continue
		}
		if inComment {
			continue
		}
		if inString {
			if c == '\\' {
				i++ // skip escaped char
				continue
			}
			if c == quote {
				if triple {
					if i+2 < len(code) && code[i+1] == quote && code[i+2] == quote {
						i += 2
						inString = false
					}
				} else {
					inString = false
				}
			}
			continue
		}

		switch c {
		case '#':
			inComment = true
		case '\'', '"':
			inString = true
			quote = c
			stringLine = line
			triple = i+2 < len(code) && code[i+1] == c && code[i+2] == c
			if triple {
				i += 2
			}
		case '(', '[', '{':
			stack = append(stack, open{ch: c, line: line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != match[c] {
				issues = append(issues, CodeIssue{Line: line, Message: "unbalanced " + string(c)})
				return issues
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inString && !triple {
		issues = append(issues, CodeIssue{Line: stringLine, Message: "unterminated string literal"})
	}
	if inString && triple {
		issues = append(issues, CodeIssue{Line: stringLine, Message: "unterminated triple-quoted string"})
	}
	for _, o := range stack {
		issues = append(issues, CodeIssue{Line: o.line, Message: "unclosed " + string(o.ch)})
	}
	return issues
}

// DeriveInputSchema builds a JSON schema object from the parameters of the
// `async def main(...)` signature. Parameters with defaults are optional;
// annotations map to JSON types, with unannotated parameters treated as
// strings.
func DeriveInputSchema(code string) (json.RawMessage, error) {
	params, err := mainParams(code)
	if err != nil {
		return nil, err
	}

	properties := make(map[string]map[string]string, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		properties[p.name] = map[string]string{"type": p.jsonType}
		if !p.hasDefault {
			required = append(required, p.name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return json.Marshal(schema)
}

type mainParam struct {
	name       string
	jsonType   string
	hasDefault bool
}

// mainParams extracts the parameter list of main, spanning lines if needed.
func mainParams(code string) ([]mainParam, error) {
	loc := asyncMainPattern.FindStringIndex(code)
	if loc == nil {
		return nil, errNoMain
	}

	// loc[1] sits just past the opening parenthesis.
	depth := 1
	start := loc[1]
	end := -1
	for i := start; i < len(code); i++ {
		switch code[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, errNoMain
	}

	raw := code[start:end]
	var params []mainParam
	for _, part := range splitTopLevel(raw) {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "*") {
			continue
		}

		hasDefault := false
		if eq := topLevelIndex(part, '='); eq >= 0 {
			hasDefault = true
			part = part[:eq]
		}

		name := part
		annotation := ""
		if colon := topLevelIndex(part, ':'); colon >= 0 {
			name = strings.TrimSpace(part[:colon])
			annotation = strings.TrimSpace(part[colon+1:])
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		params = append(params, mainParam{
			name:       name,
			jsonType:   jsonTypeFor(annotation),
			hasDefault: hasDefault,
		})
	}
	return params, nil
}

// splitTopLevel splits a parameter list on commas that are not nested
// inside brackets or string literals (default values may contain commas).
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// topLevelIndex returns the index of the first occurrence of c outside any
// bracket nesting, or -1.
func topLevelIndex(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case c:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func jsonTypeFor(annotation string) string {
	annotation = strings.TrimSpace(annotation)
	if idx := strings.IndexByte(annotation, '['); idx >= 0 {
		base := annotation[:idx]
		if strings.EqualFold(base, "optional") {
			inner := strings.TrimSuffix(annotation[idx+1:], "]")
			return jsonTypeFor(inner)
		}
		annotation = base
	}
	switch strings.ToLower(annotation) {
	case "int":
		return "integer"
	case "float":
		return "number"
	case "bool":
		return "boolean"
	case "list", "tuple", "set", "sequence":
		return "array"
	case "dict", "mapping":
		return "object"
	default:
		// str, Any, custom classes, missing annotation
		return "string"
	}
}

// ExtractDependencies collects the top-level module names imported by the
// code. Classification into stdlib vs installable packages is the
// sandbox's job.
func ExtractDependencies(code string) []string {
	seen := make(map[string]struct{})

	for _, m := range importPattern.FindAllStringSubmatch(code, -1) {
		for _, clause := range strings.Split(m[1], ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			// strip "as alias"
			if fields := strings.Fields(clause); len(fields) > 0 {
				clause = fields[0]
			}
			if top := strings.SplitN(clause, ".", 2)[0]; top != "" {
				seen[top] = struct{}{}
			}
		}
	}
	for _, m := range fromPattern.FindAllStringSubmatch(code, -1) {
		if top := strings.SplitN(m[1], ".", 2)[0]; top != "" {
			seen[top] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}
