package principal

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Principal is the identity asserted by the external provider. Only these
// fields are kept from the provider profile; everything else is dropped.
type Principal struct {
	Provider    string   `json:"provider"`
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Emails      []string `json:"emails,omitempty"`
}

var textPolicy = bluemonday.StrictPolicy()

// New builds a Principal from untrusted provider values. Markup is stripped
// from the display name and emails, and blank emails are discarded.
func New(provider, id, displayName string, emails ...string) Principal {
	p := Principal{
		Provider:    provider,
		ID:          strings.TrimSpace(id),
		DisplayName: clean(displayName),
	}
	for _, e := range emails {
		if e = clean(e); e != "" {
			p.Emails = append(p.Emails, e)
		}
	}
	return p
}

// FirstEmail returns the first email address or an empty string
func (p Principal) FirstEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// IsZero reports whether p carries no identity
func (p Principal) IsZero() bool {
	return p.ID == "" && p.DisplayName == "" && len(p.Emails) == 0
}

// Clone returns a copy that shares no memory with p
func (p Principal) Clone() Principal {
	c := p
	if p.Emails != nil {
		c.Emails = append([]string(nil), p.Emails...)
	}
	return c
}

// clean strips tags and returns plain text; escaping is left to the renderer
func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
