package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending(t *testing.T) {
	all, err := Pending(0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, all)

	rest, err := Pending(1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, rest)

	none, err := Pending(2)
	require.NoError(t, err)
	assert.Empty(t, none)
}
