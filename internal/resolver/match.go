package resolver

import "strings"

// Match reports whether a granted "resource:action" string satisfies the
// requested pair. A "*" on either side of the grant matches anything, so
// "documents:*", "*:read" and "*:*" all cover "documents:read". Wildcards
// in the request itself are not special.
func Match(granted, resource, action string) bool {
	grantedResource, grantedAction, ok := strings.Cut(granted, ":")
	if !ok {
		return false
	}
	if grantedResource != "*" && grantedResource != resource {
		return false
	}
	return grantedAction == "*" || grantedAction == action
}

// MatchAny reports whether any grant in the set covers the requested pair.
func MatchAny(granted []string, resource, action string) bool {
	for _, g := range granted {
		if Match(g, resource, action) {
			return true
		}
	}
	return false
}
