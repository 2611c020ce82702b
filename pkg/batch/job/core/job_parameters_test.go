package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "moviebatch/pkg/batch/job/core"
)

func TestJobParameters_HashIgnoresNumericType(t *testing.T) {
	a := core.NewJobParameters()
	a.Put("run.id", 3)
	a.Put("name", "movies")

	b := core.NewJobParameters()
	b.Put("name", "movies")
	b.Put("run.id", float64(3))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	c := a.Copy()
	c.Put("run.id", 4)
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestJobParameters_ZeroValue(t *testing.T) {
	var p core.JobParameters
	assert.True(t, p.IsEmpty())

	h, err := p.Hash()
	require.NoError(t, err)
	empty, err := core.NewJobParameters().Hash()
	require.NoError(t, err)
	assert.Equal(t, empty, h)

	p.Put("key", "value")
	s, ok := p.GetString("key")
	assert.True(t, ok)
	assert.Equal(t, "value", s)

	_, ok = p.GetInt("key")
	assert.False(t, ok)
}
