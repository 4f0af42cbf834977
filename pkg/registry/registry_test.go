// pkg/registry/registry_test.go
package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry("../../configs/stage-registry.json")
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", reg.Version)
	require.Len(t, reg.Stages, 7)

	scoring := reg.StageByTaskType("loan.credit-scoring")
	require.NotNil(t, scoring)
	assert.Equal(t, "credit-scoring", scoring.ID)
	assert.Contains(t, scoring.ErrorCodes, "CREDIT_SCORING_FAILED")

	verification := reg.StageByTaskType("loan.verification")
	require.NotNil(t, verification)
	assert.True(t, verification.Concurrent)

	assert.Nil(t, reg.StageByTaskType("unknown-task"))
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry("does-not-exist.json")
	assert.Error(t, err)
}

func TestStageRegistry_TaskTypes(t *testing.T) {
	reg, err := LoadRegistry("../../configs/stage-registry.json")
	require.NoError(t, err)

	types := reg.TaskTypes()
	require.Len(t, types, 7)
	assert.Equal(t, "loan.validate-application", types[0])
	assert.Equal(t, "loan.send-notification", types[6])
}
