package fetch

import (
	"maps"
	nethttp "net/http"
	"strings"
)

// Credentials controls whether credentials travel with a request.
type Credentials string

// Mode selects the cross-origin policy of a request.
type Mode string

// Redirect selects how redirects are handled.
type Redirect string

const (
	CredentialsInclude    Credentials = "include"
	CredentialsSameOrigin Credentials = "same-origin"
	CredentialsOmit       Credentials = "omit"

	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"

	RedirectFollow Redirect = "follow"
	RedirectError  Redirect = "error"
	RedirectManual Redirect = "manual"
)

// Options are the per-request settings passed to a Fetcher.
// Zero fields mean "not set" and are filled from defaults by Merge.
type Options struct {
	Method      string
	Credentials Credentials
	Mode        Mode
	Redirect    Redirect
	Headers     map[string]string
	Body        []byte
}

// DefaultOptions returns the options every request starts from.
func DefaultOptions() Options {
	return Options{
		Credentials: CredentialsInclude,
		Mode:        ModeCORS,
		Redirect:    RedirectFollow,
	}
}

// Merge returns o with every non-zero field of override applied on top.
// Headers are merged key by key with override winning.
func (o Options) Merge(override Options) Options {
	out := o
	out.Headers = maps.Clone(o.Headers)
	if override.Method != "" {
		out.Method = override.Method
	}
	if override.Credentials != "" {
		out.Credentials = override.Credentials
	}
	if override.Mode != "" {
		out.Mode = override.Mode
	}
	if override.Redirect != "" {
		out.Redirect = override.Redirect
	}
	if len(override.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(override.Headers))
		}
		maps.Copy(out.Headers, override.Headers)
	}
	if override.Body != nil {
		out.Body = override.Body
	}
	return out
}

// Validate checks the enumerated fields.
func (o Options) Validate() error {
	switch o.Credentials {
	case "", CredentialsInclude, CredentialsSameOrigin, CredentialsOmit:
	default:
		return NewValidationError("unsupported credentials mode "+string(o.Credentials), "credentials")
	}
	switch o.Mode {
	case "", ModeCORS, ModeNoCORS, ModeSameOrigin:
	default:
		return NewValidationError("unsupported request mode "+string(o.Mode), "mode")
	}
	switch o.Redirect {
	case "", RedirectFollow, RedirectError, RedirectManual:
	default:
		return NewValidationError("unsupported redirect mode "+string(o.Redirect), "redirect")
	}
	return nil
}

// method returns the upper-cased method, defaulting to GET.
func (o Options) method() string {
	if o.Method == "" {
		return nethttp.MethodGet
	}
	return strings.ToUpper(o.Method)
}
