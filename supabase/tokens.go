package supabase

import (
	"net/url"
	"strings"
)

// StorageKey returns the key under which the auth client persists its session,
// namespaced by the project reference of the endpoint.
func StorageKey(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	ref, _, _ := strings.Cut(host, ".")
	return "sb-" + ref + "-auth-token"
}
