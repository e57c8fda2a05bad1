package expressions

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	return NewResolver(slog.Default())
}

func contextWith(steps map[string]any) *Context {
	return &Context{Steps: steps}
}

func TestResolve_LiteralPassthrough(t *testing.T) {
	r := testResolver()
	rc := NewContext()

	assert.Equal(t, "plain string", r.Resolve("plain string", rc, nil))
	assert.Equal(t, "", r.Resolve("", rc, nil))
}

func TestResolve_WholeTokenPreservesType(t *testing.T) {
	r := testResolver()
	rc := contextWith(map[string]any{
		"s1": map[string]any{
			"result": map[string]any{
				"posts": []any{float64(1), float64(2)},
				"count": float64(10),
				"live":  true,
			},
		},
	})

	assert.Equal(t, []any{float64(1), float64(2)}, r.Resolve("{{steps.s1.result.posts}}", rc, nil))
	assert.Equal(t, float64(10), r.Resolve("{{steps.s1.result.count}}", rc, nil))
	assert.Equal(t, true, r.Resolve("{{steps.s1.result.live}}", rc, nil))
}

func TestResolve_UnknownPathReturnsNil(t *testing.T) {
	r := testResolver()
	rc := contextWith(map[string]any{"s1": map[string]any{"result": "ok"}})

	assert.Nil(t, r.Resolve("{{steps.s1.result.missing}}", rc, nil))
	assert.Nil(t, r.Resolve("{{steps.nope}}", rc, nil))
	assert.Nil(t, r.Resolve("{{unknownroot.x}}", rc, nil))
}

func TestResolve_EmbeddedStringifies(t *testing.T) {
	r := testResolver()
	rc := contextWith(map[string]any{
		"s1": map[string]any{"result": map[string]any{"name": "ada", "count": float64(3)}},
	})

	got := r.Resolve("user {{steps.s1.result.name}} has {{steps.s1.result.count}} posts", rc, nil)
	assert.Equal(t, "user ada has 3 posts", got)
}

func TestResolve_ItemRoot(t *testing.T) {
	r := testResolver()
	rc := NewContext()
	item := map[string]any{"id": "p1", "tags": []any{"a", "b"}}

	assert.Equal(t, item, r.Resolve("{{item}}", rc, item))
	assert.Equal(t, "p1", r.Resolve("{{item.id}}", rc, item))
	assert.Equal(t, "b", r.Resolve("{{item.tags.1}}", rc, item))
}

func TestResolve_UnclosedMarkerKeptLiteral(t *testing.T) {
	r := testResolver()
	rc := NewContext()

	assert.Equal(t, "{{steps.s1", r.Resolve("{{steps.s1", rc, nil))
}

func TestResolve_ListIndex(t *testing.T) {
	r := testResolver()
	rc := contextWith(map[string]any{
		"s1": map[string]any{"result": []any{"first", "second"}},
	})

	assert.Equal(t, "second", r.Resolve("{{steps.s1.result.1}}", rc, nil))
	assert.Nil(t, r.Resolve("{{steps.s1.result.9}}", rc, nil))
}

func TestResolveParams_RecursesAndCopies(t *testing.T) {
	r := testResolver()
	rc := contextWith(map[string]any{
		"s1": map[string]any{"result": map[string]any{"url": "https://x.test"}},
	})

	params := map[string]any{
		"url":    "{{steps.s1.result.url}}",
		"count":  float64(5),
		"nested": map[string]any{"again": "{{steps.s1.result.url}}"},
		"list":   []any{"{{steps.s1.result.url}}", "literal"},
	}

	resolved := r.ResolveParams(params, rc, nil)
	require.NotNil(t, resolved)
	assert.Equal(t, "https://x.test", resolved["url"])
	assert.Equal(t, float64(5), resolved["count"])
	assert.Equal(t, "https://x.test", resolved["nested"].(map[string]any)["again"])
	assert.Equal(t, []any{"https://x.test", "literal"}, resolved["list"])

	// The input params must not be mutated.
	assert.Equal(t, "{{steps.s1.result.url}}", params["url"])
}

func TestHasTemplate(t *testing.T) {
	assert.True(t, HasTemplate("{{steps.a}}"))
	assert.True(t, HasTemplate("x {{item.y}} z"))
	assert.False(t, HasTemplate("plain"))
	assert.False(t, HasTemplate("{{unclosed"))
	assert.False(t, HasTemplate("closed}} then {{open"))
	assert.True(t, HasTemplate("{{a}} and {{unclosed"))
}
