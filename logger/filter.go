package logger

import (
	"net/url"
	"reflect"
	"strings"
)

const (
	// DefaultMaxDepth bounds recursion into nested values
	DefaultMaxDepth = 8
	// DefaultMaskValue replaces sensitive values
	DefaultMaskValue = "***"
)

// FilterConfig selects the field names whose values are masked. Matching is
// case-insensitive on substrings, so "authorization" also covers
// "Proxy-Authorization".
type FilterConfig struct {
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig covers credentials that travel with fetch requests:
// auth headers, cookies, API keys and tokens in query strings.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "pwd",
			"secret", "api_key", "apikey", "api-key",
			"token", "auth", "authorization",
			"cookie", "session",
			"credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they reach a log entry.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter. A nil config uses the defaults.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	cfg := *config
	if cfg.MaskValue == "" {
		cfg.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: &cfg}
}

// FilterString masks value when key is sensitive. URLs under any key keep
// their shape but lose passwords and sensitive query parameters.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" {
		return value
	}
	if f.isSensitive(key) {
		if isURL(value) {
			return f.FilterURL(value)
		}
		return f.config.MaskValue
	}
	if isURL(value) {
		return f.FilterURL(value)
	}
	return value
}

// FilterURL masks the userinfo password and sensitive query parameters.
func (f *SensitiveDataFilter) FilterURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), f.config.MaskValue)
			changed = true
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if f.isSensitive(k) {
				q.Set(k, f.config.MaskValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return raw
	}
	// Keep the mask readable instead of percent-encoded.
	return strings.ReplaceAll(u.String(), url.QueryEscape(f.config.MaskValue), f.config.MaskValue)
}

// FilterHeaders returns a copy of headers with sensitive values masked.
func (f *SensitiveDataFilter) FilterHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if f.isSensitive(k) {
			out[k] = f.config.MaskValue
			continue
		}
		out[k] = v
	}
	return out
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = f.FilterValue(k, v)
	}
	return out
}

// FilterValue masks value when key is sensitive and recurses into maps,
// slices and structs otherwise.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filter(key, value, make(map[uintptr]struct{}), DefaultMaxDepth)
}

func (f *SensitiveDataFilter) filter(key string, value any, visited map[uintptr]struct{}, depth int) any {
	if f.isSensitive(key) {
		return f.config.MaskValue
	}
	if value == nil || depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case string:
		if isURL(v) {
			return f.FilterURL(v)
		}
		return v
	case map[string]string:
		return f.FilterHeaders(v)
	case map[string][]string:
		out := make(map[string][]string, len(v))
		for k, vals := range v {
			if f.isSensitive(k) {
				out[k] = []string{f.config.MaskValue}
				continue
			}
			out[k] = vals
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = f.filter(k, inner, visited, depth-1)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return value
		}
		ptr := rv.Pointer()
		if _, seen := visited[ptr]; seen {
			return value
		}
		visited[ptr] = struct{}{}
		defer delete(visited, ptr)
		return f.filterStruct(rv.Elem(), visited, depth)
	case reflect.Struct:
		return f.filterStruct(rv, visited, depth)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return value
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = f.filter(key, rv.Index(i).Interface(), visited, depth-1)
		}
		return out
	default:
		return value
	}
}

// filterStruct renders exported fields into a map keyed by their JSON names.
func (f *SensitiveDataFilter) filterStruct(rv reflect.Value, visited map[uintptr]struct{}, depth int) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(&field)
		if name == "" {
			continue
		}
		out[name] = f.filter(name, rv.Field(i).Interface(), visited, depth-1)
	}
	return out
}

// jsonFieldName returns the JSON name of a field, or "" when it is skipped.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func (f *SensitiveDataFilter) isSensitive(key string) bool {
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, s := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
