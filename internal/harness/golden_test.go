package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/01-status-equality.yaml",
		"testdata/scenarios/02-status-split.yaml",
	} {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunWithGolden_NoPlan(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/05-strict-list-contains.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.Error(t, err)
	assert.Nil(t, result.Plan)
}
