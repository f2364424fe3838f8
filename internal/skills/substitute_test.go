package skills

import (
	"reflect"
	"testing"
)

func TestSubstitute_Nested(t *testing.T) {
	in := map[string]any{"a": "${x}", "b": []any{"${x}", "${y}"}}
	got := Substitute(in, map[string]any{"x": "1", "y": "2"})
	want := map[string]any{"a": "1", "b": []any{"1", "2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSubstitute_UnresolvedKept(t *testing.T) {
	if got := Substitute("${missing}", map[string]any{}); got != "${missing}" {
		t.Errorf("expected placeholder kept, got %v", got)
	}
	if got := Substitute("a ${x} b ${y}", map[string]any{"x": "X"}); got != "a X b ${y}" {
		t.Errorf("expected partial substitution, got %v", got)
	}
}

func TestSubstitute_PureAndDeterministic(t *testing.T) {
	in := map[string]any{"k": []any{"${a}-${b}", 3.5, true, nil}}
	vars := map[string]any{"a": "A", "b": 2.0}

	first := Substitute(in, vars)
	second := Substitute(in, vars)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical outputs, got %v and %v", first, second)
	}
	if in["k"].([]any)[0] != "${a}-${b}" {
		t.Error("input was modified")
	}
	if len(vars) != 2 || vars["a"] != "A" {
		t.Error("vars were modified")
	}
	if got := first.(map[string]any)["k"].([]any)[0]; got != "A-2" {
		t.Errorf("expected A-2, got %v", got)
	}
}

func TestSubstitute_NoRescan(t *testing.T) {
	vars := map[string]any{"a": "${b}", "b": "B"}
	if got := Substitute("${a}", vars); got != "${b}" {
		t.Errorf("expected substituted text not to be rescanned, got %v", got)
	}
	if got := Substitute("${a${b}}", vars); got != "${aB}" {
		t.Errorf("expected only the inner placeholder replaced, got %v", got)
	}
}

func TestSubstitute_NonStringsUnchanged(t *testing.T) {
	for _, v := range []any{42.0, true, nil} {
		if got := Substitute(v, map[string]any{"x": 1}); got != v {
			t.Errorf("expected %v unchanged, got %v", v, got)
		}
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{5.0, "5"},
		{2.5, "2.5"},
		{int64(7), "7"},
		{true, "true"},
		{nil, "null"},
		{map[string]any{"a": 1.0}, `{"a":1}`},
		{[]any{"x", 2.0}, `["x",2]`},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%v): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
