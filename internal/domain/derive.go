package domain

import (
	"strings"

	"golang.org/x/net/idna"
)

// UnknownDomain is the sentinel classification for anonymous events and
// for contact attributes with no recognizable host part.
const UnknownDomain = "unknown"

// DomainAnalysis classifies an event's origin by the host portion of the
// optional contact attribute. Derived on demand, never stored on the Event.
type DomainAnalysis struct {
	Domain string `json:"domain"`
}

// DeriveDomain computes the privacy-preserving domain classification.
// Purely syntactic: the attribute is split on its last "@" and the host
// part is normalized to its lower-cased ASCII (punycode) form. No DNS or
// MX lookups. Identical input always yields identical output.
func DeriveDomain(identity *Identity) DomainAnalysis {
	if identity == nil {
		return DomainAnalysis{Domain: UnknownDomain}
	}
	addr := strings.TrimSpace(identity.Email)
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return DomainAnalysis{Domain: UnknownDomain}
	}
	host := strings.ToLower(strings.TrimSpace(addr[at+1:]))
	if host == "" {
		return DomainAnalysis{Domain: UnknownDomain}
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return DomainAnalysis{Domain: UnknownDomain}
	}
	return DomainAnalysis{Domain: ascii}
}
