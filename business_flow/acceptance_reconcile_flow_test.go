package businessflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// blockedLead runs a connect then message campaign until the message waits for acceptance
func blockedLead(h *testHarness, tenantID, accountID, profileURL string) (*models.Campaign, *models.CampaignLead) {
	h.t.Helper()
	h.fx.Wallet(tenantID, 100)
	h.fx.Account(tenantID, accountID)
	campaign := h.fx.Campaign(tenantID,
		&models.LinkedInConnectSpec{},
		&models.LinkedInMessageSpec{Message: "Thanks {{first_name}}"},
	)
	lead := h.fx.Lead(campaign, func(l *models.CampaignLead) {
		l.FirstName = "Ada"
		l.LinkedInURL = utils.ToPtr(profileURL)
	})

	for range 2 {
		_, err := h.runner.ProcessCampaign(h.ctx, campaign.ID)
		require.NoError(h.t, err)
	}
	stored := h.fx.ReloadLead(lead)
	require.Equal(h.t, h.step(campaign, models.StepTypeLinkedInMessage).StepOrder, stored.CurrentStepOrder)
	require.Len(h.t, h.records(lead.ID, models.ActionMessageSkipped), 1)
	return campaign, stored
}

func TestReconcile_AcceptanceUnblocksMessageOnce(t *testing.T) {
	h := newHarness(t)
	campaign, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")

	h.advance(time.Hour)
	h.linkedIn.AddConnection("acc-1", services.Connection{
		ProfileURL:  "http://LinkedIn.com/in/Ada-Lovelace/",
		ProviderID:  "prov-1",
		ConnectedAt: h.now.Add(-30 * time.Minute),
	})

	summary, err := h.reconciler.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Tenants)
	assert.Equal(t, 1, summary.Accounts)
	assert.Equal(t, 1, summary.Connections)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Unblocked)
	assert.Empty(t, summary.Failures)

	messages := h.linkedIn.GetCalls(services.LinkedInCallMessage)
	require.Len(t, messages, 1)
	assert.Equal(t, "Thanks Ada", messages[0].Text)
	assert.Equal(t, models.LeadStatusCompleted, h.fx.ReloadLead(lead).Status)

	accepted := h.records(lead.ID, models.ActionConnectionAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, campaign.ID, accepted[0].CampaignID)
	assert.Equal(t, "https://www.linkedin.com/in/ada-lovelace", accepted[0].NormalizedProfileURL)
	assert.Equal(t, "prov-1", metadataOf(t, accepted[0])["provider_id"])

	// the same connection seen again changes nothing
	summary, err = h.reconciler.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Zero(t, summary.Accepted)
	assert.Zero(t, summary.Unblocked)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallMessage), 1)
	assert.Len(t, h.records(lead.ID, models.ActionConnectionAccepted), 1)
}

func TestReconcile_UnknownConnectionIsIgnored(t *testing.T) {
	h := newHarness(t)
	_, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")
	h.linkedIn.AddConnection("acc-1", services.Connection{
		ProfileURL:  "https://www.linkedin.com/in/someone-else",
		ConnectedAt: h.now,
	})

	summary, err := h.reconciler.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Connections)
	assert.Zero(t, summary.Matched)
	assert.Empty(t, h.records(lead.ID, models.ActionConnectionAccepted))
}

func TestReconcile_ConnectionOutsideLookbackIsIgnored(t *testing.T) {
	h := newHarness(t)
	_, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")
	h.linkedIn.AddConnection("acc-1", services.Connection{
		ProfileURL:  "https://www.linkedin.com/in/ada-lovelace",
		ConnectedAt: h.now.Add(-25 * time.Hour),
	})

	summary, err := h.reconciler.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Connections)
	assert.Empty(t, h.records(lead.ID, models.ActionConnectionAccepted))
}

func TestReconcile_FailuresAreIsolatedPerTenant(t *testing.T) {
	h := newHarness(t)
	blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")
	_, other := blockedLead(h, "tenant-b", "acc-2", "https://www.linkedin.com/in/grace-hopper")

	h.linkedIn.ConnectionsErr["acc-1"] = errors.New("provider timeout")
	h.linkedIn.AddConnection("acc-2", services.Connection{
		ProfileURL:  "https://www.linkedin.com/in/grace-hopper",
		ConnectedAt: h.now,
	})

	summary, err := h.reconciler.ReconcileAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Tenants)
	assert.Equal(t, 2, summary.Accounts)
	assert.Equal(t, 1, summary.Unblocked)

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, testTenant, summary.Failures[0].TenantID)
	assert.NotZero(t, summary.Failures[0].AccountID)
	assert.Contains(t, summary.Failures[0].Error, "provider timeout")

	assert.Equal(t, models.LeadStatusCompleted, h.fx.ReloadLead(other).Status)
}

func TestReconcile_ConnectionsAreMatchedWithinTheTenant(t *testing.T) {
	h := newHarness(t)
	_, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")

	outcome, err := h.reconciler.HandleAcceptedConnection(h.ctx, "tenant-b", services.Connection{
		ProfileURL: "https://www.linkedin.com/in/ada-lovelace",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.Empty(t, h.records(lead.ID, models.ActionConnectionAccepted))
}

func TestReconcile_WebhookIsRecordedOnce(t *testing.T) {
	h := newHarness(t)
	campaign, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")
	conn := services.Connection{ProfileURL: "linkedin.com/in/ada-lovelace"}

	outcome, err := h.reconciler.HandleAcceptedConnection(h.ctx, testTenant, conn)
	require.NoError(t, err)
	assert.True(t, outcome.Matched)
	assert.True(t, outcome.Recorded)
	assert.True(t, outcome.Unblocked)
	assert.Equal(t, campaign.ID, outcome.CampaignID)
	assert.Equal(t, lead.ID, outcome.LeadID)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, StepStatusSuccess, outcome.Result.Status)

	outcome, err = h.reconciler.HandleAcceptedConnection(h.ctx, testTenant, conn)
	require.NoError(t, err)
	assert.True(t, outcome.Matched)
	assert.False(t, outcome.Recorded)
	assert.False(t, outcome.Unblocked)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallMessage), 1)
}

func TestReconcile_UnparseableURLIsNotMatched(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.reconciler.HandleAcceptedConnection(h.ctx, testTenant, services.Connection{ProfileURL: "  "})
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestReconcile_PausedCampaignWaitsForNextPass(t *testing.T) {
	h := newHarness(t)
	campaign, lead := blockedLead(h, testTenant, "acc-1", "https://www.linkedin.com/in/ada-lovelace")
	require.NoError(t, h.store.Campaigns().UpdateStatus(h.ctx, campaign.ID, models.CampaignStatusPaused))

	outcome, err := h.reconciler.HandleAcceptedConnection(h.ctx, testTenant, services.Connection{
		ProfileURL: "https://www.linkedin.com/in/ada-lovelace",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Recorded)
	assert.False(t, outcome.Unblocked)
	assert.Empty(t, h.linkedIn.GetCalls(services.LinkedInCallMessage))

	// once resumed, the recheck sends the message because the acceptance is on record
	require.NoError(t, h.store.Campaigns().UpdateStatus(h.ctx, campaign.ID, models.CampaignStatusRunning))
	h.advance(4 * time.Hour)
	summary, err := h.runner.ProcessCampaign(h.ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallMessage), 1)
	assert.Equal(t, models.LeadStatusCompleted, h.fx.ReloadLead(lead).Status)
}
