package render

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/tombee/chord/pkg/errors"
)

var (
	actionPattern    = regexp.MustCompile(`\{\{-?\s*(.*?)\s*-?\}\}`)
	namespacePattern = regexp.MustCompile(`(^|[^\w.$"])(def|pre|case|step|dyn|curr|res)\b`)

	templateCache sync.Map // normalized text -> *template.Template
)

// RenderString renders a template against the context. Undefined variables
// are errors.
func (c *Context) RenderString(text string) (string, error) {
	return c.renderWith(text, nil)
}

func (c *Context) renderWith(text string, extra map[string]interface{}) (string, error) {
	if !containsTemplateSyntax(text) {
		return text, nil
	}
	tmpl, err := compileTemplate(text)
	if err != nil {
		return "", &errors.RenderError{Template: truncateForError(text), Cause: err}
	}

	data := c.data
	if len(extra) > 0 {
		data = make(map[string]interface{}, len(c.data)+len(extra))
		for k, v := range c.data {
			data[k] = v
		}
		for k, v := range extra {
			data[k] = v
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &errors.RenderError{Template: truncateForError(text), Cause: err}
	}
	return buf.String(), nil
}

// RenderValue renders every string leaf of a JSON-shaped value. A leaf that
// is a single reference ("{{step.a.value}}") keeps the referenced value's
// type; a leaf that renders to a JSON object or array is decoded back into
// structured data.
func (c *Context) RenderValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if path, ok := pureReference(v); ok {
			if raw, found := c.Get(path); found {
				return deepCopy(raw), nil
			}
		}
		rendered, err := c.RenderString(v)
		if err != nil {
			return nil, err
		}
		if rendered != v {
			if decoded, ok := decodeStructured(rendered); ok {
				return decoded, nil
			}
		}
		return rendered, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			r, err := c.RenderValue(val)
			if err != nil {
				return nil, errors.Wrapf(err, "in field %q", k)
			}
			out[k] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			r, err := c.RenderValue(val)
			if err != nil {
				return nil, errors.Wrapf(err, "at index %d", i)
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func compileTemplate(text string) (*template.Template, error) {
	normalized := Normalize(text)
	if cached, ok := templateCache.Load(normalized); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("chord").
		Funcs(TemplateFuncMap()).
		Option("missingkey=error").
		Parse(normalized)
	if err != nil {
		return nil, err
	}
	templateCache.Store(normalized, tmpl)
	return tmpl, nil
}

// Normalize rewrites bare namespace references inside template actions into
// Go template field access: {{case.x}} becomes {{.case.x}}. Quoted literals
// are left untouched.
func Normalize(text string) string {
	return actionPattern.ReplaceAllStringFunc(text, func(action string) string {
		return rewriteOutsideQuotes(action)
	})
}

func rewriteOutsideQuotes(action string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(action); i++ {
		q := action[i]
		if q != '"' && q != '`' {
			continue
		}
		b.WriteString(namespacePattern.ReplaceAllString(action[start:i], "$1.$2"))
		end := i + 1
		for end < len(action) && action[end] != q {
			if q == '"' && action[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(action) {
			end = len(action) - 1
		}
		b.WriteString(action[i : end+1])
		i = end
		start = end + 1
	}
	if start < len(action) {
		b.WriteString(namespacePattern.ReplaceAllString(action[start:], "$1.$2"))
	}
	return b.String()
}

// pureReference reports whether s is exactly one template action holding a
// bare path, and returns the path.
func pureReference(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return "", false
	}
	inner := strings.TrimSpace(s[2 : len(s)-2])
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	inner = strings.TrimPrefix(inner, ".")
	if inner == "" || strings.ContainsAny(inner, " \t\n()|\"`$") {
		return "", false
	}
	return inner, true
}

func decodeStructured(s string) (interface{}, bool) {
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return nil, false
	}
	out, err := DecodeJSON([]byte(t))
	if err != nil {
		return nil, false
	}
	return out, true
}

func containsTemplateSyntax(s string) bool {
	return strings.Contains(s, "{{")
}

func truncateForError(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
