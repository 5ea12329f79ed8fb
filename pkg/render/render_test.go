package render

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chord/pkg/errors"
)

func newCaseContext() *Context {
	base := NewContext(
		map[string]interface{}{"host": "example.com", "port": 8080},
		map[string]interface{}{"step": map[string]interface{}{"token": map[string]interface{}{"value": "t0k"}}},
	)
	ctx := base.ForCase(map[string]interface{}{"x": "5", "name": "bob"})
	ctx.SetStepValue("login", map[string]interface{}{"code": int64(200), "ids": []interface{}{"a", "b"}})
	ctx.SetDyn("session", "s-1")
	ctx.SetCurr("step", "check")
	return ctx
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "{{case.x}}", want: "{{.case.x}}"},
		{in: "{{ case.x }}", want: "{{ .case.x }}"},
		{in: "{{.case.x}}", want: "{{.case.x}}"},
		{in: "a {{def.host}}:{{def.port}} b", want: "a {{.def.host}}:{{.def.port}} b"},
		{in: `{{default "case.y" case.y}}`, want: `{{default "case.y" .case.y}}`},
		{in: "{{upper step.a.value}}", want: "{{upper .step.a.value}}"},
		{in: "{{ $x := case.x }}", want: "{{ $x := .case.x }}"},
		{in: "case.x stays outside", want: "case.x stays outside"},
		{in: "{{res}}", want: "{{.res}}"},
		{in: "{{defaults}}", want: "{{defaults}}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestRenderString(t *testing.T) {
	ctx := newCaseContext()

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{name: "plain", tpl: "no templates", want: "no templates"},
		{name: "def", tpl: "http://{{def.host}}:{{def.port}}", want: "http://example.com:8080"},
		{name: "case", tpl: "{{case.name}}-{{case.x}}", want: "bob-5"},
		{name: "pre", tpl: "{{pre.step.token.value}}", want: "t0k"},
		{name: "step", tpl: "{{step.login.value.code}}", want: "200"},
		{name: "dyn", tpl: "{{dyn.session}}", want: "s-1"},
		{name: "curr", tpl: "{{curr.step}}", want: "check"},
		{name: "func", tpl: "{{upper case.name}}", want: "BOB"},
		{name: "json", tpl: "{{json step.login.value.ids}}", want: `["a","b"]`},
		{name: "dotted", tpl: "{{.case.name}}", want: "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ctx.RenderString(tt.tpl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderString_Errors(t *testing.T) {
	ctx := newCaseContext()

	for _, tpl := range []string{"{{case.missing}}", "{{step.nope.value}}", "{{case.x", "{{nofunc case.x}}"} {
		t.Run(tpl, func(t *testing.T) {
			_, err := ctx.RenderString(tpl)
			require.Error(t, err)
			var rerr *errors.RenderError
			assert.True(t, errors.As(err, &rerr))
		})
	}

	base := NewContext(nil, nil)
	_, err := base.RenderString("{{case.x}}")
	assert.Error(t, err, "case is not available before a case starts")
}

func TestRenderValue(t *testing.T) {
	ctx := newCaseContext()

	got, err := ctx.RenderValue(map[string]interface{}{
		"url":    "http://{{def.host}}/u/{{case.name}}",
		"code":   "{{step.login.value.code}}",
		"ids":    "{{step.login.value.ids}}",
		"body":   `{"n": "{{case.x}}"}`,
		"list":   []interface{}{"{{case.x}}", 3, true},
		"static": 1.5,
	})
	require.NoError(t, err)

	m := got.(map[string]interface{})
	assert.Equal(t, "http://example.com/u/bob", m["url"])
	assert.Equal(t, int64(200), m["code"], "pure reference keeps the type")
	assert.Equal(t, []interface{}{"a", "b"}, m["ids"])
	assert.Equal(t, map[string]interface{}{"n": "5"}, m["body"], "JSON text is decoded back")
	assert.Equal(t, []interface{}{"5", 3, true}, m["list"])
	assert.Equal(t, 1.5, m["static"])

	_, err = ctx.RenderValue(map[string]interface{}{"bad": "{{case.nope}}"})
	assert.ErrorContains(t, err, `in field "bad"`)
}

func TestRenderValue_PureReferenceIsCopied(t *testing.T) {
	ctx := newCaseContext()
	got, err := ctx.RenderValue("{{step.login.value}}")
	require.NoError(t, err)

	got.(map[string]interface{})["code"] = int64(500)
	code, _ := ctx.Get("step.login.value.code")
	assert.Equal(t, int64(200), code)
}

func TestEvaluate(t *testing.T) {
	ctx := newCaseContext()

	tests := []struct {
		name  string
		cond  string
		extra map[string]interface{}
		want  bool
	}{
		{name: "empty", cond: "", want: true},
		{name: "substituted number", cond: "{{case.x}} > 1", want: true},
		{name: "substituted number false", cond: "{{case.x}} > 7", want: false},
		{name: "quoted string", cond: `"{{case.name}}" == "bob"`, want: true},
		{name: "bare reference", cond: `case.name == "bob"`, want: true},
		{name: "result", cond: "res.code == 200", extra: map[string]interface{}{"res": map[string]interface{}{"code": 200}}, want: true},
		{name: "result template", cond: "{{res}} == 3", extra: map[string]interface{}{"res": 3}, want: true},
		{name: "has", cond: `has(step.login.value.ids, "b")`, want: true},
		{name: "length", cond: `length(step.login.value.ids) == 2`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ctx.Evaluate(tt.cond, tt.extra)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, ctx.EvaluateBool(tt.cond, tt.extra))
		})
	}
}

func TestEvaluateBool_ErrorsAreFalse(t *testing.T) {
	ctx := newCaseContext()
	for _, cond := range []string{"{{case.missing}} > 1", "1 +", `"{{case.name}}"`} {
		t.Run(cond, func(t *testing.T) {
			_, err := ctx.Evaluate(cond, nil)
			assert.Error(t, err)
			assert.False(t, ctx.EvaluateBool(cond, nil))
		})
	}
}

func TestEvaluate_UndefinedReference(t *testing.T) {
	ctx := newCaseContext()
	res := map[string]interface{}{"res": map[string]interface{}{"code": 200, "body": nil}}

	for _, cond := range []string{"res.missing == nil", "nothing == nil", "case.nope != 1", "res.code == 200 && step.other.value == nil"} {
		t.Run(cond, func(t *testing.T) {
			_, err := ctx.Evaluate(cond, res)
			var rerr *errors.RenderError
			require.True(t, errors.As(err, &rerr), "got %v", err)
			assert.Contains(t, rerr.Error(), "undefined reference")
			assert.False(t, ctx.EvaluateBool(cond, res))
		})
	}

	ok, err := ctx.Evaluate("res.body == nil && len(case.name) == 3", res)
	require.NoError(t, err)
	assert.True(t, ok, "present nil values and builtins still resolve")
}

func TestFilterOverRows(t *testing.T) {
	base := NewContext(nil, nil)
	kept := 0
	for x := 1; x <= 10; x++ {
		ctx := base.ForCase(map[string]interface{}{"x": fmt.Sprint(x)})
		if ctx.EvaluateBool("{{case.x}} > 1", nil) {
			kept++
		}
	}
	assert.Equal(t, 9, kept)
}

func TestForCase_IsolatesClones(t *testing.T) {
	base := NewContext(map[string]interface{}{"nested": map[string]interface{}{"k": "v"}}, nil)
	a := base.ForCase(map[string]interface{}{"id": "a"})
	b := base.ForCase(map[string]interface{}{"id": "b"})

	a.SetStepValue("s1", "from-a")
	a.Data()["def"].(map[string]interface{})["nested"].(map[string]interface{})["k"] = "changed"

	_, found := b.Get("step.s1")
	assert.False(t, found)
	v, _ := base.Get("def.nested.k")
	assert.Equal(t, "v", v)
	_, found = base.Get("step")
	assert.False(t, found, "base context has no step namespace")
}

func TestEvaluatorCache(t *testing.T) {
	e := NewEvaluator()
	for i := 0; i < 3; i++ {
		ok, err := e.Evaluate("1 < 2", nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, e.CacheSize())

	_, err := e.Evaluate(`"not bool"`, nil)
	assert.Error(t, err)
}
