package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileValidators_SortedByID(t *testing.T) {
	c := mustBuiltin(t)
	compiled := c.CompileValidators()
	require.Len(t, compiled, len(c.ValidatorClauseMap))
	for i := 1; i < len(compiled); i++ {
		assert.Less(t, compiled[i-1].ValidatorID, compiled[i].ValidatorID)
	}

	compiled[0].ClauseIDs[0] = "mutated"
	assert.NotEqual(t, "mutated", c.ValidatorClauseMap[compiled[0].ValidatorID][0])
}

func TestExecuteValidators(t *testing.T) {
	c := mustBuiltin(t)

	t.Run("all clauses observed", func(t *testing.T) {
		report := c.ExecuteValidators(c.ClauseIDs())
		assert.True(t, report.Passed)
		assert.Empty(t, report.OrphanClaimIDs)
		for _, res := range report.ValidatorResults {
			assert.True(t, res.Passed, res.ValidatorID)
			assert.Empty(t, res.MissingClaimIDs)
		}
	})

	t.Run("missing clause fails its validator", func(t *testing.T) {
		observed := []string{}
		for _, id := range c.ClauseIDs() {
			if id != "SEM-EFFECT-001" {
				observed = append(observed, id)
			}
		}
		report := c.ExecuteValidators(observed)
		assert.False(t, report.Passed)
		for _, res := range report.ValidatorResults {
			if res.ValidatorID == "side_effect_validator" {
				assert.False(t, res.Passed)
				assert.Equal(t, []string{"SEM-EFFECT-001"}, res.MissingClaimIDs)
			} else {
				assert.True(t, res.Passed, res.ValidatorID)
			}
		}
	})

	t.Run("orphan claim fails the gate", func(t *testing.T) {
		report := c.ExecuteValidators(append(c.ClauseIDs(), "SEM-GHOST-404"))
		assert.False(t, report.Passed)
		assert.Equal(t, []string{"SEM-GHOST-404"}, report.OrphanClaimIDs)
	})
}
