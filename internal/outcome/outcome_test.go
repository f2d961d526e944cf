package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	r := Ok(3.5)
	assert.True(t, r.Ok())
	assert.Equal(t, 3.5, r.Value)
	assert.Empty(t, r.Reason)

	d := Degraded("fallback", ReasonNumericDegeneracy)
	assert.False(t, d.Ok())
	assert.Equal(t, "fallback", d.Value)
	assert.Equal(t, ReasonNumericDegeneracy, d.Reason)
}
