package identity

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxProfileBytes = 1 << 20

// profile accepts both the portable-contacts shape
// ({id, displayName, emails:[{value}]}) and OpenID Connect claims
// ({sub, name, email}).
type profile struct {
	ID          json.RawMessage `json:"id"`
	Sub         string          `json:"sub"`
	DisplayName string          `json:"displayName"`
	Name        string          `json:"name"`
	GivenName   string          `json:"given_name"`
	FamilyName  string          `json:"family_name"`
	Email       string          `json:"email"`
	Emails      []struct {
		Value string `json:"value"`
	} `json:"emails"`
}

func decodeProfile(r io.Reader) (profile, error) {
	var p profile
	if err := json.NewDecoder(io.LimitReader(r, maxProfileBytes)).Decode(&p); err != nil {
		return profile{}, providerError("decode profile", err)
	}
	return p, nil
}

func (p profile) id() string {
	if p.Sub != "" {
		return p.Sub
	}
	raw := strings.TrimSpace(string(p.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	// numeric ids (GitHub and friends)
	var n json.Number
	if err := json.Unmarshal(p.ID, &n); err == nil {
		return n.String()
	}
	return ""
}

func (p profile) displayName() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Name != "":
		return p.Name
	default:
		return strings.TrimSpace(fmt.Sprintf("%s %s", p.GivenName, p.FamilyName))
	}
}

func (p profile) emails() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(e string) {
		if e == "" || seen[e] {
			return
		}
		seen[e] = true
		out = append(out, e)
	}
	for _, e := range p.Emails {
		add(e.Value)
	}
	add(p.Email)
	return out
}
