package valuetype

import (
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		raw  any
		want any
	}{
		{"bool from string one", Boolean, "1", true},
		{"bool from zero", Boolean, "0", false},
		{"bool from empty", Boolean, "", false},
		{"bool from false word", Boolean, "false", true},
		{"bool from f", Boolean, "f", true},
		{"bool from space", Boolean, " ", true},
		{"bool from zero float", Boolean, float64(0), false},
		{"bool from number", Boolean, float64(2), true},
		{"int from string", Integer, "42", int64(42)},
		{"int with suffix", Integer, "12px", int64(12)},
		{"int from float", Integer, 3.9, int64(3)},
		{"int from garbage", Integer, "abc", int64(0)},
		{"negative int", Integer, "-7", int64(-7)},
		{"text keeps one newline", Text, "a\r\n\r\nb", "a\nb"},
		{"richtext keeps one newline", RichText, "<p>a</p>\n\n<p>b</p>", "<p>a</p>\n<p>b</p>"},
		{"string folds newlines", String, "a\nb\r\nc", "a b c"},
		{"unknown type folds newlines", "color", "x\ny", "x y"},
		{"nil string", String, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.typ, tt.raw); got != tt.want {
				t.Fatalf("Format(%s, %#v) = %#v, want %#v", tt.typ, tt.raw, got, tt.want)
			}
		})
	}
}

func TestPrettify(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		raw   any
		words int
		lang  string
		want  string
	}{
		{"yes", Boolean, "1", 0, "en", "Yes"},
		{"no in russian", Boolean, "0", 0, "ru", "Нет"},
		{"integer", Integer, "15 items", 0, "en", "15"},
		{"text escaped with breaks", Text, "<b>a</b>\nb", 0, "en", "&lt;b&gt;a&lt;/b&gt;<br />\nb"},
		{"text truncated", Text, "one two three four", 2, "en", "one two..."},
		{"richtext stripped", RichText, "<p>Hello <i>world</i></p>", 0, "en", "Hello world"},
		{"string stripped and truncated", String, "<a href='x'>one</a> two three", 2, "en", "one two..."},
		{"short text untouched", String, "one two", 2, "en", "one two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prettify(tt.typ, tt.raw, tt.words, tt.lang); got != tt.want {
				t.Fatalf("Prettify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(Integer, "ru"); got != "Целое число" {
		t.Fatalf("ru label = %q", got)
	}
	if got := TypeName(Image, "de"); got != "Image" {
		t.Fatalf("fallback label = %q", got)
	}
	if got := TypeName("color", "en"); got != "color" {
		t.Fatalf("unknown type = %q", got)
	}
	if len(TypeList("en")) != len(Types) {
		t.Fatal("every type needs a label")
	}
}

func TestLang(t *testing.T) {
	tests := map[string]string{
		"":                       "en",
		"ru-RU,ru;q=0.9,en;q=0.8": "ru",
		"en-US":                  "en",
		"de-DE":                  "en",
	}
	for in, want := range tests {
		if got := Lang(in); got != want {
			t.Fatalf("Lang(%q) = %q, want %q", in, got, want)
		}
	}
}
