package fetch

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

const jsonContentType = "application/json"

// BodyKind tags the variant held by a Body.
type BodyKind int

const (
	BodyText BodyKind = iota
	BodyJSON
	BodyParseError
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyParseError:
		return "parse_error"
	default:
		return "text"
	}
}

// Body is the content-negotiated payload of a response: decoded JSON, raw
// text, or the message of a failed JSON decode.
type Body struct {
	kind  BodyKind
	value any
	text  string
}

// JSONBody wraps an already decoded JSON value.
func JSONBody(v any) Body { return Body{kind: BodyJSON, value: v} }

// TextBody wraps a plain-text payload.
func TextBody(s string) Body { return Body{kind: BodyText, text: s} }

func parseErrorBody(err error) Body {
	return Body{kind: BodyParseError, text: fmt.Sprintf("unknown error: %v", err)}
}

// Kind returns the variant tag.
func (b Body) Kind() BodyKind { return b.kind }

// JSON returns the decoded value when the body is JSON.
func (b Body) JSON() (any, bool) {
	if b.kind != BodyJSON {
		return nil, false
	}
	return b.value, true
}

// Text returns the raw text of a text body, or the message of a parse error.
func (b Body) Text() string { return b.text }

// String renders the body for display.
func (b Body) String() string {
	if b.kind != BodyJSON {
		return b.text
	}
	out, err := json.Marshal(b.value)
	if err != nil {
		return fmt.Sprintf("%v", b.value)
	}
	return string(out)
}

// empty mirrors a falsy payload: empty text or JSON null.
func (b Body) empty() bool {
	switch b.kind {
	case BodyJSON:
		return b.value == nil
	case BodyText:
		return b.text == ""
	default:
		return false
	}
}

// IsJSONContentType reports whether a Content-Type header denotes JSON.
func IsJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), jsonContentType)
}

// ParseBody decodes the response payload according to its Content-Type.
func ParseBody(resp *Response) Body {
	if resp == nil {
		return TextBody("")
	}
	if !IsJSONContentType(resp.ContentType()) {
		return TextBody(string(resp.Body))
	}
	var v any
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return parseErrorBody(err)
	}
	return JSONBody(v)
}

// ErrorValue is what stateful fetchers expose as their error: either a JSON
// document returned by the server or a message.
type ErrorValue struct {
	json    any
	isJSON  bool
	message string
}

// ErrorMessage builds a message-only ErrorValue.
func ErrorMessage(msg string) *ErrorValue { return &ErrorValue{message: msg} }

// ErrorJSON builds an ErrorValue carrying a server JSON document.
func ErrorJSON(v any) *ErrorValue { return &ErrorValue{json: v, isJSON: true} }

// errorFrom renders a transport failure for display.
func errorFrom(err error) *ErrorValue {
	if err == nil {
		return nil
	}
	return ErrorMessage(err.Error())
}

// JSON returns the structured error content when the server sent JSON.
func (e *ErrorValue) JSON() (any, bool) {
	if e == nil || !e.isJSON {
		return nil, false
	}
	return e.json, true
}

// Message returns the error text. For JSON errors it is the encoded document.
func (e *ErrorValue) Message() string {
	if e == nil {
		return ""
	}
	if e.isJSON {
		return JSONBody(e.json).String()
	}
	return e.message
}

func (e *ErrorValue) String() string { return e.Message() }

// Outcome is the resolved result of a response that reached the caller.
type Outcome struct {
	Response *Body
	Error    *ErrorValue
}

// Resolve applies the shared success/error rules to a response:
// parse failures and non-2xx statuses become errors, everything else is the
// response body.
func Resolve(resp *Response) Outcome {
	body := ParseBody(resp)
	if body.Kind() == BodyParseError {
		return Outcome{Error: ErrorMessage(body.Text())}
	}
	if resp.OK() {
		return Outcome{Response: &body}
	}
	if !body.empty() {
		if v, ok := body.JSON(); ok {
			return Outcome{Error: ErrorJSON(v)}
		}
		return Outcome{Error: ErrorMessage(body.Text())}
	}
	return Outcome{Error: ErrorMessage(statusLine(resp))}
}

func statusLine(resp *Response) string {
	if resp == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, resp.Status))
}
