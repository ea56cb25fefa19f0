package printing

import (
	"bytes"
	"context"
	"html/template"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/i18n"
	"github.com/shopspring/decimal"
)

// TemplateEngine executes invoice templates. Formatting helpers are bound
// to the document language and currency at render time.
type TemplateEngine struct {
	translator *i18n.Translator
	funcMap    template.FuncMap
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine(translator *i18n.Translator) *TemplateEngine {
	if translator == nil {
		translator = i18n.NewTranslator()
	}
	return &TemplateEngine{
		translator: translator,
		funcMap: template.FuncMap{
			"upper":    strings.ToUpper,
			"lower":    strings.ToLower,
			"trim":     strings.TrimSpace,
			"join":     strings.Join,
			"truncate": truncate,
			"default":  defaultFunc,
			"empty":    empty,
			"notEmpty": func(v any) bool { return !empty(v) },
			"add":      func(a, b any) decimal.Decimal { return toDecimal(a).Add(toDecimal(b)) },
			"sub":      func(a, b any) decimal.Decimal { return toDecimal(a).Sub(toDecimal(b)) },
			"isZero":   func(v any) bool { return toDecimal(v).IsZero() },
			"seq":      seq,
		},
	}
}

// Locale binds a render to a language and currency
type Locale struct {
	Language string
	Currency string
}

// localeFuncs returns the helpers whose output depends on the locale
func (e *TemplateEngine) localeFuncs(loc Locale) template.FuncMap {
	return template.FuncMap{
		"t": func(key string, args ...any) string {
			return e.translator.Translate(loc.Language, key, args...)
		},
		"money": func(v any) string {
			return i18n.FormatMoney(loc.Language, toDecimal(v), loc.Currency)
		},
		"number": func(v any, scale int) string {
			return i18n.FormatNumber(loc.Language, toDecimal(v), scale)
		},
		"percent": func(v any) string {
			return i18n.FormatPercent(loc.Language, toDecimal(v))
		},
		"date": func(v any) string {
			return i18n.FormatDate(loc.Language, toTime(v))
		},
		"label": func(code any) string {
			return i18n.Label(loc.Language, toString(code))
		},
	}
}

// Render parses and executes content with data
func (e *TemplateEngine) Render(_ context.Context, name, content string, loc Locale, data any) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", NewRenderError(ErrCodeInvalidHTML, "template content is empty", nil)
	}

	funcMap := make(template.FuncMap, len(e.funcMap)+8)
	maps.Copy(funcMap, e.funcMap)
	maps.Copy(funcMap, e.localeFuncs(loc))

	tmpl, err := template.New(name).Funcs(funcMap).Parse(content)
	if err != nil {
		return "", NewRenderError(ErrCodeInvalidHTML, "failed to parse template "+name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template "+name, err)
	}
	return buf.String(), nil
}

// truncate shortens s to max runes including the suffix
func truncate(s string, max int, suffix ...string) string {
	suf := "..."
	if len(suffix) > 0 {
		suf = suffix[0]
	}
	runes := []rune(s)
	sufRunes := []rune(suf)
	if len(runes) <= max {
		return s
	}
	if max <= len(sufRunes) {
		return string(sufRunes[:max])
	}
	return string(runes[:max-len(sufRunes)]) + suf
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func empty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case decimal.Decimal:
		return val.IsZero()
	case *decimal.Decimal:
		return val == nil || val.IsZero()
	case time.Time:
		return val.IsZero()
	case *time.Time:
		return val == nil || val.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Bool:
		return !rv.Bool()
	}
	return rv.IsZero()
}

func defaultFunc(val, def any) any {
	if empty(val) {
		return def
	}
	return val
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case interface{ String() string }:
		return val.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return ""
}

func toDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero
		}
		return *val
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case float64:
		return decimal.NewFromFloat(val)
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func toTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val == nil {
			return time.Time{}
		}
		return *val
	case string:
		for _, f := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(f, val); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
