package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChangeRequestStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want ChangeRequestStatus
	}{
		{"draft", ChangeRequestStatusDraft},
		{"UNDER_INTERNAL_REVIEW", ChangeRequestStatusUnderInternalReview},
		{"Under Review", ChangeRequestStatusUnderInternalReview},
		{"client-review", ChangeRequestStatusClientUnderReview},
		{"Processing", ChangeRequestStatusProcessing},
		{"pending", ChangeRequestStatusProcessing},
		{"Requires_Revision", ChangeRequestStatusProcessing},
		{"approved", ChangeRequestStatusApproved},
		{"terminated", ChangeRequestStatusRejected},
		{"REJECTED", ChangeRequestStatusRejected},
	}
	for _, tc := range cases {
		got, err := ParseChangeRequestStatus(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseChangeRequestStatus("withdrawn")
	assert.Error(t, err)
}

func TestChangeRequestStatusPredicates(t *testing.T) {
	assert.True(t, ChangeRequestStatusDraft.Editable())
	assert.True(t, ChangeRequestStatusProcessing.Editable())
	assert.False(t, ChangeRequestStatusUnderInternalReview.Editable())
	assert.False(t, ChangeRequestStatusApproved.Editable())

	assert.True(t, ChangeRequestStatusApproved.Terminal())
	assert.True(t, ChangeRequestStatusRejected.Terminal())
	assert.False(t, ChangeRequestStatusClientUnderReview.Terminal())
}

func TestChangeRequestTypesFor(t *testing.T) {
	msa := ChangeRequestTypesFor(ContractKindMSA, "")
	assert.ElementsMatch(t, []ChangeRequestType{CRTypeAddScope, CRTypeRemoveScope, CRTypeOther}, msa)

	fp := ChangeRequestTypesFor(ContractKindSOW, EngagementFixedPrice)
	assert.Contains(t, fp, CRTypeExtendSchedule)
	assert.Contains(t, fp, CRTypeRateChange)
	assert.Contains(t, fp, CRTypeIncreaseResource)
	assert.NotContains(t, fp, CRTypeResourceChange)

	retainer := ChangeRequestTypesFor(ContractKindSOW, EngagementRetainer)
	assert.ElementsMatch(t, []ChangeRequestType{CRTypeResourceChange, CRTypeScheduleChange, CRTypeScopeAdjustment}, retainer)

	assert.Empty(t, ChangeRequestTypesFor(ContractKindSOW, ""))
}

func TestValidChangeRequestType(t *testing.T) {
	assert.True(t, ValidChangeRequestType(CRTypeResourceChange, ContractKindSOW, EngagementRetainer))
	assert.False(t, ValidChangeRequestType(CRTypeResourceChange, ContractKindSOW, EngagementFixedPrice))
	assert.True(t, ValidChangeRequestType(CRTypeOther, ContractKindMSA, ""))
	assert.False(t, ValidChangeRequestType(CRTypeExtendSchedule, ContractKindMSA, ""))
}
