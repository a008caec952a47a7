// internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// SiteScope decides whether a link stays on the site under test. Links that
// leave it are still inventoried but never catalogued.
type SiteScope struct {
	rootDomain        string
	includeSubdomains bool
}

// NewSiteScope derives the scope from the page URL.
func NewSiteScope(pageURL string, includeSubdomains bool) (*SiteScope, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("page URL must have a hostname: %s", pageURL)
	}

	// eTLD+1, so www.toyota.com and toyota.co.uk style hosts both reduce to
	// the organisational domain.
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return nil, fmt.Errorf("could not determine effective TLD+1 for %s: %w", hostname, err)
	}

	return &SiteScope{
		rootDomain:        domain,
		includeSubdomains: includeSubdomains,
	}, nil
}

// Contains reports whether u belongs to the site. Relative URLs always do.
func (s *SiteScope) Contains(u *url.URL) bool {
	if s == nil || !u.IsAbs() && u.Host == "" {
		return true
	}
	host := u.Hostname()
	if host == s.rootDomain {
		return true
	}
	// a dot boundary keeps notourdomain.com from matching ourdomain.com
	return s.includeSubdomains && strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the eTLD+1 defining the scope.
func (s *SiteScope) RootDomain() string {
	return s.rootDomain
}
