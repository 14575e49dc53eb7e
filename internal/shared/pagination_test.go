package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 10, p.Limit)
	require.Equal(t, 25, p.Total)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 10, p.Offset())

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.Limit)
	require.Zero(t, p.TotalPages)
	require.Zero(t, p.Offset())
}

func TestNormalizePage(t *testing.T) {
	page, limit := NormalizePage(-1, 0)
	require.Equal(t, 1, page)
	require.Equal(t, 20, limit)

	page, limit = NormalizePage(3, 5000)
	require.Equal(t, 3, page)
	require.Equal(t, 1000, limit)
}
