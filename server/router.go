package server

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Route tiers, in strict precedence order.
const (
	tierExact = iota
	tierParam
	tierWildcard
	tierCatchAll
)

// Handler is a routed handler: params carries extracted :name segments.
type Handler func(w http.ResponseWriter, r *http.Request, params map[string]string)

// Route is one registered pattern.
type Route struct {
	Methods  map[string]bool
	Pattern  string
	Segments []string
	Tier     int
	Handler  Handler
	Cache    *CacheMeta
	// WS marks upgrade routes: they skip OPTIONS shortcuts and are
	// documented (not fetched) by the endpoint sweep.
	WS bool
}

// Router matches (method, path) with strict tier precedence: exact > param >
// wildcard > catch-all, registration order within a tier. Immutable after
// startup; no mutex on the match path.
type Router struct {
	tiers [4][]*Route
}

// NewRouter returns an empty router.
func NewRouter() *Router { return &Router{} }

// Handle registers a route. Patterns:
//
//	/api/version           exact
//	/api/dev/:endpoint     param (':name' segments, unique per path)
//	/api/*                 prefix wildcard
//	/*                     global catch-all
func (rt *Router) Handle(pattern string, handler Handler, methods ...string) *Route {
	route := &Route{
		Pattern: pattern,
		Handler: handler,
		Methods: make(map[string]bool, len(methods)),
	}
	for _, m := range methods {
		route.Methods[strings.ToUpper(m)] = true
	}
	if len(methods) == 0 {
		route.Methods[http.MethodGet] = true
	}

	switch {
	case pattern == "/*":
		route.Tier = tierCatchAll
	case strings.HasSuffix(pattern, "/*"):
		route.Tier = tierWildcard
		route.Segments = splitPath(strings.TrimSuffix(pattern, "/*"))
	case strings.Contains(pattern, "/:"):
		route.Tier = tierParam
		route.Segments = splitPath(pattern)
	default:
		route.Tier = tierExact
		route.Segments = splitPath(pattern)
	}

	rt.tiers[route.Tier] = append(rt.tiers[route.Tier], route)
	return route
}

// Match finds the highest-precedence route for path. Returns the route and
// extracted params, or nil when nothing matches (not even a catch-all).
func (rt *Router) Match(path string) (*Route, map[string]string) {
	segments := splitPath(path)

	for _, route := range rt.tiers[tierExact] {
		if equalSegments(route.Segments, segments) {
			return route, nil
		}
	}

	for _, route := range rt.tiers[tierParam] {
		if params, ok := matchParams(route.Segments, segments); ok {
			return route, params
		}
	}

	for _, route := range rt.tiers[tierWildcard] {
		if prefixMatch(route.Segments, segments) {
			return route, nil
		}
	}

	if routes := rt.tiers[tierCatchAll]; len(routes) > 0 {
		return routes[0], nil
	}
	return nil, nil
}

// Routes returns every registered route in precedence order. Used by the
// endpoint metadata merge.
func (rt *Router) Routes() []*Route {
	var out []*Route
	for _, tier := range rt.tiers {
		out = append(out, tier...)
	}
	return out
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func equalSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func matchParams(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var params map[string]string
	for i, ps := range pattern {
		if strings.HasPrefix(ps, ":") {
			if params == nil {
				params = make(map[string]string)
			}
			params[ps[1:]] = decodeParam(segments[i])
			continue
		}
		if ps != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func prefixMatch(prefix, segments []string) bool {
	if len(segments) < len(prefix) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segments[i] {
			return false
		}
	}
	return true
}

// decodeParam percent-decodes a path segment; invalid UTF-8 bytes are
// replaced with U+FFFD. Undecodable escapes fall back to the raw segment.
func decodeParam(seg string) string {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		decoded = seg
	}
	if utf8.ValidString(decoded) {
		return decoded
	}
	return strings.ToValidUTF8(decoded, "�")
}
