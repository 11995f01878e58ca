package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

func TestLeadProgression_Outcomes(t *testing.T) {
	// 1 connect, 2 message, 3 delay, 4 visit
	newCampaign := func(h *testHarness) *models.Campaign {
		return h.fx.Campaign(testTenant,
			&models.LinkedInConnectSpec{},
			&models.LinkedInMessageSpec{Message: "hello"},
			&models.DelaySpec{Days: 1, Hours: 2},
			&models.LinkedInVisitSpec{},
		)
	}

	tests := []struct {
		name       string
		stepOrder  int
		result     *StepResult
		wantStatus models.LeadStatus
		wantOrder  int
		wantNext   time.Duration
		wantError  string
	}{
		{
			name:       "success advances to the next step",
			stepOrder:  1,
			result:     stepSuccess(),
			wantStatus: models.LeadStatusActive,
			wantOrder:  2,
		},
		{
			name:       "skipped message is rechecked later",
			stepOrder:  2,
			result:     stepSkipped(CodeConnectionNotAccepted, "not yet"),
			wantStatus: models.LeadStatusActive,
			wantOrder:  2,
			wantNext:   4 * time.Hour,
		},
		{
			name:       "retryable failure stays on the step",
			stepOrder:  1,
			result:     stepFailed(CodeProviderUnavailable, "boom", true),
			wantStatus: models.LeadStatusActive,
			wantOrder:  1,
			wantError:  "PROVIDER_UNAVAILABLE: boom",
		},
		{
			name:       "permanent failure moves on",
			stepOrder:  1,
			result:     stepFailed(CodeProviderRejected, "", false),
			wantStatus: models.LeadStatusActive,
			wantOrder:  2,
			wantError:  "PROVIDER_REJECTED",
		},
		{
			name:       "delay schedules the next step",
			stepOrder:  3,
			result:     &StepResult{Status: StepStatusSuccess, Delay: 26 * time.Hour},
			wantStatus: models.LeadStatusActive,
			wantOrder:  4,
			wantNext:   26 * time.Hour,
		},
		{
			name:       "last step completes the lead",
			stepOrder:  4,
			result:     stepSuccess(),
			wantStatus: models.LeadStatusCompleted,
			wantOrder:  4,
		},
		{
			name:       "permanent failure on the last step completes the lead",
			stepOrder:  4,
			result:     stepFailed(CodeNoProviderAccount, "", false),
			wantStatus: models.LeadStatusCompleted,
			wantOrder:  4,
			wantError:  "NO_PROVIDER_ACCOUNT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			campaign := newCampaign(h)
			lead := h.fx.Lead(campaign, func(l *models.CampaignLead) { l.CurrentStepOrder = tt.stepOrder })
			step := &campaign.Steps[tt.stepOrder-1]

			require.NoError(t, h.progression.Apply(h.ctx, campaign, lead, step, tt.result))

			stored := h.fx.ReloadLead(lead)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.wantOrder, stored.CurrentStepOrder)
			if tt.wantNext > 0 {
				require.NotNil(t, stored.NextActionAt)
				assert.True(t, stored.NextActionAt.Equal(h.now.Add(tt.wantNext)))
			} else {
				assert.Nil(t, stored.NextActionAt)
			}
			assert.Equal(t, tt.wantError, utils.Deref(stored.LastError))
			assert.Equal(t, stored.Status, lead.Status)
		})
	}
}

func TestLeadProgression_DelayOnLastStepCompletes(t *testing.T) {
	h := newHarness(t)
	campaign := h.fx.Campaign(testTenant, &models.LinkedInVisitSpec{}, &models.DelaySpec{Days: 3})
	lead := h.fx.Lead(campaign, func(l *models.CampaignLead) { l.CurrentStepOrder = 2 })

	require.NoError(t, h.progression.Apply(h.ctx, campaign, lead, &campaign.Steps[1],
		&StepResult{Status: StepStatusSuccess, Delay: 72 * time.Hour}))

	stored := h.fx.ReloadLead(lead)
	assert.Equal(t, models.LeadStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextActionAt)
}

func TestLeadProgression_ConditionBranches(t *testing.T) {
	tests := []struct {
		name       string
		cond       *models.ConditionSpec
		met        bool
		wantStatus models.LeadStatus
		wantOrder  int
	}{
		{
			name:       "met continues",
			cond:       &models.ConditionSpec{Check: models.ConditionHasEmail, OnFalse: models.ConditionOnFalseStop},
			met:        true,
			wantStatus: models.LeadStatusActive,
			wantOrder:  3,
		},
		{
			name:       "unmet continues by default",
			cond:       &models.ConditionSpec{Check: models.ConditionHasEmail},
			wantStatus: models.LeadStatusActive,
			wantOrder:  3,
		},
		{
			name:       "unmet stops",
			cond:       &models.ConditionSpec{Check: models.ConditionHasEmail, OnFalse: models.ConditionOnFalseStop},
			wantStatus: models.LeadStatusStopped,
			wantOrder:  2,
		},
		{
			name:       "unmet jumps forward",
			cond:       &models.ConditionSpec{Check: models.ConditionHasEmail, OnFalse: models.ConditionOnFalseJump, OnFalseStepOrder: 4},
			wantStatus: models.LeadStatusActive,
			wantOrder:  4,
		},
		{
			name:       "jump past the end completes",
			cond:       &models.ConditionSpec{Check: models.ConditionHasEmail, OnFalse: models.ConditionOnFalseJump, OnFalseStepOrder: 9},
			wantStatus: models.LeadStatusCompleted,
			wantOrder:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			campaign := h.fx.Campaign(testTenant,
				&models.LinkedInConnectSpec{},
				tt.cond,
				&models.EmailSpec{Subject: "s", Body: "b"},
				&models.LinkedInVisitSpec{},
			)
			lead := h.fx.Lead(campaign, func(l *models.CampaignLead) { l.CurrentStepOrder = 2 })

			result := stepSuccess()
			result.ConditionMet = utils.ToPtr(tt.met)
			require.NoError(t, h.progression.Apply(h.ctx, campaign, lead, &campaign.Steps[1], result))

			stored := h.fx.ReloadLead(lead)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.wantOrder, stored.CurrentStepOrder)
		})
	}
}

func TestLeadProgression_UnknownStatus(t *testing.T) {
	h := newHarness(t)
	campaign := h.fx.Campaign(testTenant, &models.LinkedInVisitSpec{})
	lead := h.fx.Lead(campaign)

	err := h.progression.Apply(h.ctx, campaign, lead, &campaign.Steps[0], &StepResult{Status: "bogus"})
	assert.Error(t, err)
}
