package reshape

import (
	"encoding/json"
	"testing"
)

func TestPathFind(t *testing.T) {
	data, _ := parseJSON(`{
		"x-forwarded-for": "1.2.3.4",
		"empty": "",
		"list": [],
		"obj": {},
		"zero": 0,
		"no": false,
		"nested": {"inner": "v"},
		"text": "abc"
	}`)

	tests := []struct {
		name   string
		path   Path
		wantOK bool
		want   any
	}{
		{"hyphenated key", Field("x-forwarded-for"), true, "1.2.3.4"},
		{"empty string is absent", Field("empty"), false, nil},
		{"empty list is absent", Field("list"), false, nil},
		{"empty object is absent", Field("obj"), false, nil},
		{"zero is present", Field("zero"), true, json.Number("0")},
		{"false is present", Field("no"), true, false},
		{"nested", Field("nested", "inner"), true, "v"},
		{"through non-object", Field("text", "inner"), false, nil},
		{"missing", Field("missing"), false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.path.Find(data)
			if got.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v", got.OK, tt.wantOK)
			}
			if got.Value != tt.want {
				t.Errorf("Value = %#v, want %#v", got.Value, tt.want)
			}
		})
	}
}

func TestLookupComposition(t *testing.T) {
	data := map[string]any{"b": "second", "c": "third"}

	got := FirstOf(data, Field("a"), Field("b"), Field("c"))
	if got.Value != "second" {
		t.Errorf("FirstOf = %#v", got.Value)
	}

	chained := Field("a").Find(data).Or(Field("c").Find(data))
	if chained.Value != "third" {
		t.Errorf("Or = %#v", chained.Value)
	}

	if v := Field("a").Find(data).OrDefault("fallback"); v != "fallback" {
		t.Errorf("OrDefault = %#v", v)
	}
	if s := Field("a").Find(nil).String(NotFound("a")); s != "Not found a" {
		t.Errorf("String = %q", s)
	}
}
