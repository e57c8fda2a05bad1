package expressions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Template marker pair. An expression is a substring of the form
// {{steps.<id>...}} or {{item...}} inside a string parameter value.
const (
	markerOpen  = "{{"
	markerClose = "}}"
)

// Context is the accumulated data available to template resolution during a
// run: one entry per completed step, keyed by step ID.
type Context struct {
	Steps map[string]any
}

// NewContext creates an empty resolution context.
func NewContext() *Context {
	return &Context{Steps: make(map[string]any)}
}

// SetStep folds a step's result value into the context.
func (c *Context) SetStep(stepID string, value any) {
	if c.Steps == nil {
		c.Steps = make(map[string]any)
	}
	c.Steps[stepID] = value
}

// Resolver resolves templated parameter strings against a Context and,
// inside iteration, the current loop item. Resolution is side-effect-free
// and terminating: the grammar is a restricted two-root dot-path, not a
// general expression language. A missing key at any depth resolves to nil
// with a warning; resolution never fails.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger falls back to slog.Default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// HasTemplate reports whether s contains a template expression: an opening
// marker with a closing marker somewhere after it. An unclosed marker is a
// literal, consistent with Resolve.
func HasTemplate(s string) bool {
	idx := strings.Index(s, markerOpen)
	if idx == -1 {
		return false
	}
	return strings.Contains(s[idx+len(markerOpen):], markerClose)
}

// Resolve resolves a single string value. Strings without the marker pair
// are returned unchanged. When the entire string is one {{...}} token the
// resolved value is returned with its type preserved; otherwise each token
// is substituted into the string in place.
func (r *Resolver) Resolve(expr string, rc *Context, item any) any {
	if !HasTemplate(expr) {
		return expr
	}

	// Whole-token reference keeps the resolved value's type.
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, markerOpen) && strings.HasSuffix(trimmed, markerClose) {
		inner := trimmed[len(markerOpen) : len(trimmed)-len(markerClose)]
		if !strings.Contains(inner, markerOpen) && !strings.Contains(inner, markerClose) {
			return r.resolvePath(strings.TrimSpace(inner), rc, item)
		}
	}

	// Embedded references stringify into the surrounding text.
	var out strings.Builder
	out.Grow(len(expr))
	rest := expr
	for {
		idx := strings.Index(rest, markerOpen)
		if idx == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:idx])
		rest = rest[idx+len(markerOpen):]

		end := strings.Index(rest, markerClose)
		if end == -1 {
			// Unclosed marker: keep the raw text as a literal.
			out.WriteString(markerOpen)
			out.WriteString(rest)
			break
		}
		path := strings.TrimSpace(rest[:end])
		out.WriteString(stringify(r.resolvePath(path, rc, item)))
		rest = rest[end+len(markerClose):]
	}
	return out.String()
}

// ResolveParams maps Resolve over every string leaf of a params structure,
// recursing into nested maps and lists and leaving non-string leaves
// untouched. It returns a new structure; the input is never mutated.
func (r *Resolver) ResolveParams(params map[string]any, rc *Context, item any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = r.resolveValue(v, rc, item)
	}
	return out
}

func (r *Resolver) resolveValue(v any, rc *Context, item any) any {
	switch val := v.(type) {
	case string:
		return r.Resolve(val, rc, item)
	case map[string]any:
		return r.ResolveParams(val, rc, item)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = r.resolveValue(elem, rc, item)
		}
		return out
	default:
		return v
	}
}

// resolvePath walks a dot-path rooted at "steps" or "item". Unknown roots
// and missing keys yield nil plus a warning diagnostic.
func (r *Resolver) resolvePath(path string, rc *Context, item any) any {
	if path == "" {
		r.warn(path, "empty template expression")
		return nil
	}

	segments := strings.Split(path, ".")

	switch segments[0] {
	case "item":
		// Loop-item root: only meaningful inside iteration.
		if len(segments) == 1 {
			return item
		}
		return r.traverse(item, segments[1:], path)

	case "steps":
		if len(segments) < 2 {
			r.warn(path, "step reference needs a step id")
			return nil
		}
		var root any
		if rc != nil && rc.Steps != nil {
			root = rc.Steps
		} else {
			root = map[string]any{}
		}
		return r.traverse(root, segments[1:], path)

	default:
		r.warn(path, "unknown template root (want steps or item)")
		return nil
	}
}

// traverse walks nested maps and lists one segment at a time. Numeric
// segments index into lists.
func (r *Resolver) traverse(current any, segments []string, path string) any {
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				r.warn(path, fmt.Sprintf("key %q not found", seg))
				return nil
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				r.warn(path, fmt.Sprintf("list index %q out of range", seg))
				return nil
			}
			current = node[idx]
		case nil:
			r.warn(path, fmt.Sprintf("nil value before segment %q", seg))
			return nil
		default:
			r.warn(path, fmt.Sprintf("cannot traverse into %T at %q", current, seg))
			return nil
		}
	}
	return current
}

func (r *Resolver) warn(path, reason string) {
	r.logger.Warn("template path did not resolve",
		slog.String("path", path),
		slog.String("reason", reason),
	)
}

// stringify renders a resolved value for embedding inside a larger string.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
