// Package valuetype casts and renders attribute values by their declared type.
package valuetype

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
)

import (
	"golang.org/x/text/language"
)

const (
	String   = "string"
	Integer  = "integer"
	Boolean  = "boolean"
	Text     = "text"
	RichText = "richtext"
	File     = "file"
	Image    = "image"
)

// Types lists every known type in display order.
var Types = []string{String, Integer, Boolean, Text, RichText, File, Image}

var labels = map[string]map[string]string{
	"en": {
		String:   "String",
		Integer:  "Integer",
		Boolean:  "Boolean",
		Text:     "Text",
		RichText: "HTML",
		File:     "File",
		Image:    "Image",
	},
	"ru": {
		String:   "Строка",
		Integer:  "Целое число",
		Boolean:  "Двоичное",
		Text:     "Текст",
		RichText: "HTML",
		File:     "Файл",
		Image:    "Изображение",
	},
}

var yesNo = map[string][2]string{
	"en": {"Yes", "No"},
	"ru": {"Да", "Нет"},
}

var (
	supported = []language.Tag{language.English, language.Russian}
	matcher   = language.NewMatcher(supported)
)

// Lang picks "en" or "ru" from an Accept-Language style value. Default en.
func Lang(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "en"
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// TypeList maps type to its label in lang.
func TypeList(lang string) map[string]string {
	src, ok := labels[lang]
	if !ok {
		src = labels["en"]
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TypeName is the label of typ, or typ itself when unknown.
func TypeName(typ, lang string) string {
	if name, ok := TypeList(lang)[typ]; ok {
		return name
	}
	return typ
}

var (
	newlines = regexp.MustCompile(`[\r\n]+`)
	tags     = regexp.MustCompile(`(?s)<[^>]*>`)
	spaces   = regexp.MustCompile(`\s+`)
)

// Format casts raw to typ: boolean and integer give bool and int64, text keeps
// single newlines, every other type folds newlines into spaces.
func Format(typ string, raw any) any {
	switch typ {
	case Boolean:
		return toBool(raw)
	case Integer:
		return toInt(raw)
	case Text, RichText:
		return newlines.ReplaceAllString(toString(raw), "\n")
	default:
		return newlines.ReplaceAllString(toString(raw), " ")
	}
}

// Prettify renders raw for listings. truncateWords > 0 cuts the text after that
// many words and appends "...".
func Prettify(typ string, raw any, truncateWords int, lang string) string {
	v := Format(typ, raw)
	switch typ {
	case Boolean:
		yn, ok := yesNo[lang]
		if !ok {
			yn = yesNo["en"]
		}
		if v.(bool) {
			return yn[0]
		}
		return yn[1]
	case Integer:
		return strconv.FormatInt(v.(int64), 10)
	case Text:
		s := html.EscapeString(v.(string))
		if truncateWords > 0 {
			s = TruncateWords(s, truncateWords, "...")
		}
		return strings.ReplaceAll(s, "\n", "<br />\n")
	default:
		s := tags.ReplaceAllString(v.(string), "")
		if truncateWords > 0 {
			s = TruncateWords(s, truncateWords, "...")
		}
		return s
	}
}

// TruncateWords keeps the first n words with their original spacing.
func TruncateWords(s string, n int, suffix string) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	seps := spaces.FindAllStringIndex(s, -1)
	if len(seps) < n {
		return s
	}
	return s[:seps[n-1][0]] + suffix
}

func toString(raw any) string {
	switch x := raw.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// toBool follows loose scalar casting: only "" and "0" are false strings, so "false" is true.
func toBool(raw any) bool {
	switch x := raw.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		return x != "" && x != "0"
	default:
		return false
	}
}

// toInt reads the leading integer of a string, so "12px" is 12 and "abc" is 0.
func toInt(raw any) int64 {
	switch x := raw.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int64(x)
	case int:
		return int64(x)
	case int64:
		return x
	case string:
		s := strings.TrimSpace(x)
		end := 0
		if end < len(s) && (s[end] == '-' || s[end] == '+') {
			end++
		}
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		n, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
