package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		name     string
		granted  string
		resource string
		action   string
		want     bool
	}{
		{"exact", "documents:read", "documents", "read", true},
		{"exact different action", "documents:read", "documents", "write", false},
		{"exact different resource", "documents:read", "reports", "read", false},
		{"resource wildcard", "documents:*", "documents", "delete", true},
		{"resource wildcard other resource", "documents:*", "reports", "read", false},
		{"action wildcard", "*:read", "anything", "read", true},
		{"action wildcard other action", "*:read", "anything", "write", false},
		{"super admin", "*:*", "documents", "purge", true},
		{"malformed grant", "documents", "documents", "read", false},
		{"literal star request", "documents:read", "*", "*", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Match(tc.granted, tc.resource, tc.action))
		})
	}
}

func TestMatchAny(t *testing.T) {
	granted := []string{"reports:read", "documents:*"}

	require.True(t, MatchAny(granted, "documents", "write"))
	require.True(t, MatchAny(granted, "reports", "read"))
	require.False(t, MatchAny(granted, "reports", "write"))
	require.False(t, MatchAny(nil, "documents", "read"))
}
