package config

import (
	"sort"
	"strings"
)

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	origins := make([]string, 0, len(a))
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

// ParseAllowedOrigins splits a comma separated list, ignoring blanks and trailing slashes.
func ParseAllowedOrigins(list string) AllowedOrigins {
	origins := AllowedOrigins{}
	for _, part := range strings.Split(list, ",") {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin != "" {
			origins[origin] = nullValue{}
		}
	}
	return origins
}

func (v Values) GetAllowedOrigins() AllowedOrigins {
	return ParseAllowedOrigins(v.AllowedOrigins)
}

func (Values) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Values) GetAllowedHeaders() string {
	return "Content-Type, X-Request-ID"
}
