package jq

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       interface{}
		want       interface{}
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			data:       map[string]interface{}{"foo": "bar"},
			want:       map[string]interface{}{"foo": "bar"},
		},
		{
			name:       "simple field extraction",
			expression: ".foo",
			data:       map[string]interface{}{"foo": "bar"},
			want:       "bar",
		},
		{
			name:       "int64 input is accepted",
			expression: ".code + 1",
			data:       map[string]interface{}{"code": int64(200)},
			want:       int64(201),
		},
		{
			name:       "array map",
			expression: "map(.x)",
			data:       []interface{}{map[string]interface{}{"x": int64(1)}, map[string]interface{}{"x": 2.5}},
			want:       []interface{}{int64(1), 2.5},
		},
		{
			name:       "multiple results become a list",
			expression: ".[]",
			data:       []interface{}{"a", "b"},
			want:       []interface{}{"a", "b"},
		},
		{
			name:       "no result is nil",
			expression: "empty",
			data:       map[string]interface{}{},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]interface{}{"foo": "bar"},
			wantErr:    true,
		},
		{
			name:       "runtime error",
			expression: ".foo | keys",
			data:       map[string]interface{}{"foo": "bar"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
			got, err := executor.Execute(context.Background(), tt.expression, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Execute() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExecutor_ExecuteWith(t *testing.T) {
	executor := NewExecutor(0, 0)
	vars := map[string]interface{}{
		"case": map[string]interface{}{"x": "5"},
		"def":  map[string]interface{}{"n": int64(2)},
	}

	got, err := executor.ExecuteWith(context.Background(), `{x: $case.x, n: ($def.n * .m)}`, map[string]interface{}{"m": int64(3)}, vars)
	if err != nil {
		t.Fatalf("ExecuteWith() error = %v", err)
	}
	want := map[string]interface{}{"x": "5", "n": int64(6)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExecuteWith() = %#v, want %#v", got, want)
	}
}

func TestExecutor_ResultsDoNotAliasProgram(t *testing.T) {
	executor := NewExecutor(0, 0)
	first, err := executor.Execute(context.Background(), `{"a": [1, 2]}`, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	first.(map[string]interface{})["a"] = "changed"

	second, err := executor.Execute(context.Background(), `{"a": [1, 2]}`, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := map[string]interface{}{"a": []interface{}{int64(1), int64(2)}}
	if !reflect.DeepEqual(second, want) {
		t.Errorf("second Execute() = %#v, want %#v", second, want)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	executor := NewExecutor(20*time.Millisecond, 0)
	_, err := executor.Execute(context.Background(), "last(range(10000000000))", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestExecutor_InputSize(t *testing.T) {
	executor := NewExecutor(0, 16)
	_, err := executor.Execute(context.Background(), ".", strings.Repeat("x", 64))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestExecutor_Validate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{name: "empty expression is valid", expression: ""},
		{name: "simple expression is valid", expression: ".foo"},
		{name: "pipeline is valid", expression: ".items | map(.id) | length"},
		{name: "unbalanced bracket", expression: ".[", wantErr: true},
		{name: "unknown function", expression: "nosuchfn(1)", wantErr: true},
	}

	executor := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.Validate(tt.expression)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
