package parameters

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParams(t *testing.T) {
	params := NewFromConfigString("fnn=/tmp/model,temperature=0.5,verbose,depth=x,url=a=b")
	assert.Len(t, params, 5)
	assert.Equal(t, "a=b", params["url"])

	path, err := PopParamOr(params, "fnn", "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/model", path)
	_, found := params["fnn"]
	assert.False(t, found)

	temperature, err := PopParamOr(params, "temperature", 0.0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, temperature)

	verbose, err := PopParamOr(params, "verbose", false)
	require.NoError(t, err)
	assert.True(t, verbose)

	missing, err := GetParamOr(params, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, missing)

	_, err = GetParamOr(params, "depth", 3)
	require.Error(t, err)
	_, err = PopParamOr(params, "depth", float32(1))
	require.Error(t, err)

	err = CheckAllUsed(params, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
	assert.Contains(t, err.Error(), "url")

	assert.Empty(t, NewFromConfigString(""))
	require.NoError(t, CheckAllUsed(NewFromConfigString(""), "test"))
}
