package ikeinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgboxio/ike/protocol"
)

func proposalWithTransforms(types ...protocol.TransformType) *protocol.Proposal {
	p := &protocol.Proposal{ProtocolId: protocol.PROTO_IKE}
	for i, ty := range types {
		p.Transforms = append(p.Transforms, &protocol.SaTransform{
			Transform: protocol.Transform{Type: ty, TransformId: uint16(1000 + i)},
		})
	}
	return p
}

func TestBuildKXPlanSingleSlot(t *testing.T) {
	p := proposalWithTransforms(protocol.TRANSFORM_TYPE_DH)
	plan, err := BuildKXPlan(p)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Len())
	assert.True(t, plan.Done() == false)

	slot, ok := plan.Current()
	require.True(t, ok)
	assert.Equal(t, protocol.TRANSFORM_TYPE_DH, slot.Type)
	assert.False(t, plan.Remaining(), "a single-slot plan has nothing after the current slot")
}

func TestBuildKXPlanMultipleSlotsInOrder(t *testing.T) {
	p := proposalWithTransforms(
		protocol.TRANSFORM_TYPE_DH,
		protocol.TRANSFORM_TYPE_ADDKE1,
		protocol.TRANSFORM_TYPE_ADDKE2,
	)
	plan, err := BuildKXPlan(p)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Len())
	assert.True(t, plan.Remaining())

	for i := 0; i < 3; i++ {
		slot, ok := plan.Current()
		require.True(t, ok, "slot %d should still be pending", i)
		assert.False(t, slot.Done)
		plan.MarkDone()
	}
	assert.True(t, plan.Done())
	_, ok := plan.Current()
	assert.False(t, ok, "no slot should remain once the plan is done")
}

func TestBuildKXPlanRejectsProposalWithoutDH(t *testing.T) {
	p := proposalWithTransforms(protocol.TRANSFORM_TYPE_ENCR)
	_, err := BuildKXPlan(p)
	assert.Error(t, err)
}
