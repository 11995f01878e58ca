package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

func connectCampaign(h *testHarness) *models.Campaign {
	return h.fx.Campaign(testTenant,
		&models.LinkedInConnectSpec{Message: "Hi {{first_name}}", SendMessage: true},
		&models.LinkedInMessageSpec{Message: "Thanks {{first_name}}"},
	)
}

func TestStepExecutor_ConnectSendsRequestWithNote(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	account := h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	step := h.step(campaign, models.StepTypeLinkedInConnect)

	result, err := h.executor.Execute(h.ctx, campaign, lead, step)
	require.NoError(t, err)
	assert.Equal(t, StepStatusSuccess, result.Status)

	calls := h.linkedIn.GetCalls(services.LinkedInCallConnect)
	require.Len(t, calls, 1)
	assert.Equal(t, "acc-1", calls[0].AccountID)
	assert.Equal(t, "Hi "+lead.FirstName, calls[0].Text)
	assert.Equal(t, utils.MustNormalizeProfileURL(*lead.LinkedInURL), calls[0].ProfileURL)

	records := h.records(lead.ID, models.ActionConnectionSent)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionStatusSuccess, records[0].Status)
	assert.True(t, records[0].WithMessage)
	require.NotNil(t, records[0].ProviderAccountID)
	assert.Equal(t, account.ID, *records[0].ProviderAccountID)
	assert.Equal(t, calls[0].ProfileURL, records[0].NormalizedProfileURL)
	assert.Equal(t, int64(98), h.balance())

	stored, err := h.store.Accounts().ByID(h.ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, stored.LastUsedAt.Equal(h.now))
}

func TestStepExecutor_SucceededStepIsNotRepeated(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	step := h.step(campaign, models.StepTypeLinkedInConnect)

	for range 3 {
		result, err := h.executor.Execute(h.ctx, campaign, lead, step)
		require.NoError(t, err)
		assert.Equal(t, StepStatusSuccess, result.Status)
	}

	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallConnect), 1)
	assert.Len(t, h.records(lead.ID, models.ActionConnectionSent), 1)
	assert.Equal(t, int64(98), h.balance())
}

func TestStepExecutor_ConnectNoteQuota(t *testing.T) {
	seedNote := func(h *testHarness, at time.Time) {
		require.NoError(h.t, h.store.Actions().Save(h.ctx, &models.ActionRecord{
			TenantID:    testTenant,
			CampaignID:  999,
			LeadID:      999,
			ActionType:  models.ActionConnectionSent,
			Status:      models.ActionStatusSuccess,
			WithMessage: true,
			CreatedAt:   at,
		}))
	}

	tests := []struct {
		name     string
		limit    int
		seedAt   *time.Time
		wantNote bool
	}{
		{name: "under the limit", limit: 2, wantNote: true},
		{name: "limit reached this month", limit: 1, seedAt: utils.ToPtr(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), wantNote: false},
		{name: "last month does not count", limit: 1, seedAt: utils.ToPtr(time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)), wantNote: true},
		{name: "notes disabled", limit: 0, wantNote: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(h *testHarness) { h.providerCfg.MonthlyConnectNoteLimit = tt.limit })
			h.fx.Wallet(testTenant, 100)
			h.fx.Account(testTenant, "acc-1")
			campaign := connectCampaign(h)
			lead := h.fx.Lead(campaign)
			if tt.seedAt != nil {
				seedNote(h, *tt.seedAt)
			}

			result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
			require.NoError(t, err)
			assert.Equal(t, StepStatusSuccess, result.Status)

			calls := h.linkedIn.GetCalls(services.LinkedInCallConnect)
			require.Len(t, calls, 1)
			records := h.records(lead.ID, models.ActionConnectionSent)
			require.Len(t, records, 1)

			if tt.wantNote {
				assert.NotEmpty(t, calls[0].Text)
				assert.True(t, records[0].WithMessage)
				return
			}
			assert.Empty(t, calls[0].Text)
			assert.False(t, records[0].WithMessage)
			if tt.limit > 0 {
				assert.Equal(t, true, metadataOf(t, records[0])["note_quota_exhausted"])
			}
		})
	}
}

func TestStepExecutor_ProviderOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		respond     func(services.MockLinkedInCall) (*services.ActionResult, error)
		wantCode    string
		wantRetry   bool
		wantBalance int64
	}{
		{
			name:        "rejected request is refunded",
			respond:     rejectWith(422, "profile cannot be invited"),
			wantCode:    CodeProviderRejected,
			wantBalance: 100,
		},
		{
			name:        "provider outage keeps the debit for the retry",
			respond:     rejectWith(503, ""),
			wantCode:    CodeProviderUnavailable,
			wantRetry:   true,
			wantBalance: 98,
		},
		{
			name: "transport error is transient",
			respond: func(services.MockLinkedInCall) (*services.ActionResult, error) {
				return nil, errors.New("connection reset")
			},
			wantCode:    CodeProviderUnavailable,
			wantRetry:   true,
			wantBalance: 98,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fx.Wallet(testTenant, 100)
			h.fx.Account(testTenant, "acc-1")
			campaign := connectCampaign(h)
			lead := h.fx.Lead(campaign)
			h.linkedIn.Respond = tt.respond

			result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
			require.NoError(t, err)
			assert.Equal(t, StepStatusFailed, result.Status)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.Equal(t, tt.wantRetry, result.Retryable)
			assert.Equal(t, tt.wantBalance, h.balance())

			records := h.records(lead.ID, models.ActionConnectionSent)
			require.Len(t, records, 1)
			assert.Equal(t, models.ActionStatusFailed, records[0].Status)
			assert.Equal(t, tt.wantCode, records[0].ErrorCode)
		})
	}
}

func TestStepExecutor_RetryAfterOutageIsChargedOnce(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	step := h.step(campaign, models.StepTypeLinkedInConnect)

	h.linkedIn.Respond = rejectWith(502, "bad gateway")
	result, err := h.executor.Execute(h.ctx, campaign, lead, step)
	require.NoError(t, err)
	assert.True(t, result.Retryable)

	h.linkedIn.Respond = nil
	result, err = h.executor.Execute(h.ctx, campaign, lead, step)
	require.NoError(t, err)
	assert.Equal(t, StepStatusSuccess, result.Status)

	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallConnect), 2)
	assert.Equal(t, int64(98), h.balance())
	assert.Len(t, h.store.CreditMovements(), 1)
}

func TestStepExecutor_ExpiredAccountFallsBack(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	expired := h.fx.Account(testTenant, "acc-1")
	healthy := h.fx.Account(testTenant, "acc-2")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	h.linkedIn.Respond = func(call services.MockLinkedInCall) (*services.ActionResult, error) {
		if call.AccountID == "acc-1" {
			return &services.ActionResult{AccountExpired: true, StatusCode: 401}, nil
		}
		return &services.ActionResult{Success: true, StatusCode: 200}, nil
	}

	result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
	require.NoError(t, err)
	assert.Equal(t, StepStatusSuccess, result.Status)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallConnect), 2)

	records := h.records(lead.ID, models.ActionConnectionSent)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ProviderAccountID)
	assert.Equal(t, healthy.ID, *records[0].ProviderAccountID)

	stored, err := h.store.Accounts().ByID(h.ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAccountStatusExpired, stored.Status)
	assert.Equal(t, int64(98), h.balance())
}

func TestStepExecutor_AllAccountsExpired(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	first := h.fx.Account(testTenant, "acc-1")
	second := h.fx.Account(testTenant, "acc-2")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	h.linkedIn.Respond = func(services.MockLinkedInCall) (*services.ActionResult, error) {
		return &services.ActionResult{AccountExpired: true, StatusCode: 401}, nil
	}

	result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
	require.NoError(t, err)
	assert.Equal(t, StepStatusFailed, result.Status)
	assert.Equal(t, CodeAccountExpired, result.ErrorCode)
	assert.Equal(t, RemediationReconnectAccount, result.Remediation)
	assert.False(t, result.Retryable)
	assert.Equal(t, int64(100), h.balance())

	for _, id := range []uint{first.ID, second.ID} {
		stored, err := h.store.Accounts().ByID(h.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ProviderAccountStatusExpired, stored.Status)
	}
}

func TestStepExecutor_NoProviderAccount(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)

	result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
	require.NoError(t, err)
	assert.Equal(t, StepStatusFailed, result.Status)
	assert.Equal(t, CodeNoProviderAccount, result.ErrorCode)
	assert.Equal(t, RemediationReconnectAccount, result.Remediation)
	assert.False(t, result.Retryable)
	assert.Equal(t, int64(100), h.balance())
	assert.Empty(t, h.linkedIn.GetCalls(""))

	records := h.records(lead.ID, models.ActionConnectionSent)
	require.Len(t, records, 1)
	assert.Equal(t, RemediationReconnectAccount, metadataOf(t, records[0])["remediation"])
}

func TestStepExecutor_InsufficientCreditsIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 1)
	h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)

	result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
	require.NoError(t, err)
	assert.Equal(t, StepStatusFailed, result.Status)
	assert.Equal(t, CodeInsufficientCredits, result.ErrorCode)
	assert.True(t, result.Retryable)
	assert.Empty(t, h.linkedIn.GetCalls(""))
	assert.Equal(t, int64(1), h.balance())
}

func TestStepExecutor_ConnectCooldownRunsFromAttemptEnd(t *testing.T) {
	const (
		cooldown = 80 * time.Millisecond
		callTime = 40 * time.Millisecond
	)

	tests := []struct {
		name        string
		respond     func(services.MockLinkedInCall) (*services.ActionResult, error)
		wantStatus  StepStatus
		wantBalance int64
	}{
		{
			name: "after a success",
			respond: func(services.MockLinkedInCall) (*services.ActionResult, error) {
				return &services.ActionResult{Success: true, StatusCode: 200}, nil
			},
			wantStatus:  StepStatusSuccess,
			wantBalance: 96,
		},
		{
			name:        "after a rejection",
			respond:     rejectWith(422, "profile cannot be invited"),
			wantStatus:  StepStatusFailed,
			wantBalance: 100,
		},
		{
			name: "after a transport error",
			respond: func(services.MockLinkedInCall) (*services.ActionResult, error) {
				return nil, errors.New("connection reset")
			},
			wantStatus:  StepStatusFailed,
			wantBalance: 96,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withCooldown(cooldown))
			h.fx.Wallet(testTenant, 100)
			h.fx.Account(testTenant, "acc-1")
			campaign := connectCampaign(h)
			step := h.step(campaign, models.StepTypeLinkedInConnect)
			h.linkedIn.Respond = func(call services.MockLinkedInCall) (*services.ActionResult, error) {
				time.Sleep(callTime)
				return tt.respond(call)
			}

			for range 2 {
				result, err := h.executor.Execute(h.ctx, campaign, h.fx.Lead(campaign), step)
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, result.Status)
			}

			calls := h.linkedIn.GetCalls(services.LinkedInCallConnect)
			require.Len(t, calls, 2)
			gap := calls[1].CalledAt.Sub(calls[0].CalledAt)
			assert.GreaterOrEqual(t, gap, callTime+cooldown-time.Millisecond)
			assert.Equal(t, tt.wantBalance, h.balance())
		})
	}
}

func TestStepExecutor_CooldownOnlyGatesConnect(t *testing.T) {
	h := newHarness(t, withCooldown(time.Hour))
	h.fx.Wallet(testTenant, 100)
	h.fx.Account(testTenant, "acc-1")
	campaign := h.fx.Campaign(testTenant,
		&models.LinkedInConnectSpec{Message: "Hi {{first_name}}"},
		&models.LinkedInVisitSpec{},
		&models.LinkedInFollowSpec{},
		&models.LinkedInMessageSpec{Message: "Thanks {{first_name}}"},
	)
	lead := h.fx.Lead(campaign)

	result, err := h.executor.Execute(h.ctx, campaign, lead, h.step(campaign, models.StepTypeLinkedInConnect))
	require.NoError(t, err)
	require.Equal(t, StepStatusSuccess, result.Status)

	_, err = h.store.Actions().SaveOnce(h.ctx, &models.ActionRecord{
		TenantID:   testTenant,
		CampaignID: campaign.ID,
		LeadID:     lead.ID,
		ActionType: models.ActionConnectionAccepted,
		Status:     models.ActionStatusSuccess,
		CreatedAt:  h.now,
	})
	require.NoError(t, err)

	// the account is cooling down for an hour; other LinkedIn actions go straight through
	ctx, cancel := context.WithTimeout(h.ctx, time.Second)
	defer cancel()
	for _, st := range []models.StepType{models.StepTypeLinkedInVisit, models.StepTypeLinkedInFollow, models.StepTypeLinkedInMessage} {
		result, err := h.executor.Execute(ctx, campaign, lead, h.step(campaign, st))
		require.NoError(t, err, st)
		assert.Equal(t, StepStatusSuccess, result.Status, st)
	}

	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallVisit), 1)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallFollow), 1)
	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallMessage), 1)
}

func TestStepExecutor_CooldownPastDeadlineIsNotCharged(t *testing.T) {
	h := newHarness(t, withCooldown(time.Hour))
	h.fx.Wallet(testTenant, 100)
	h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	step := h.step(campaign, models.StepTypeLinkedInConnect)

	result, err := h.executor.Execute(h.ctx, campaign, h.fx.Lead(campaign), step)
	require.NoError(t, err)
	require.Equal(t, StepStatusSuccess, result.Status)

	ctx, cancel := context.WithTimeout(h.ctx, time.Second)
	defer cancel()
	next := h.fx.Lead(campaign)
	start := time.Now()
	_, err = h.executor.Execute(ctx, campaign, next, step)
	assert.ErrorIs(t, err, ErrCooldownPastDeadline)
	assert.Less(t, time.Since(start), time.Second)

	assert.Len(t, h.linkedIn.GetCalls(services.LinkedInCallConnect), 1)
	assert.Empty(t, h.records(next.ID, models.ActionConnectionSent))
	assert.Len(t, h.store.CreditMovements(), 1)
	assert.Equal(t, int64(98), h.balance())
}

func TestStepExecutor_MessageWaitsForAcceptance(t *testing.T) {
	h := newHarness(t)
	h.fx.Wallet(testTenant, 100)
	h.fx.Account(testTenant, "acc-1")
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	step := h.step(campaign, models.StepTypeLinkedInMessage)

	for range 2 {
		result, err := h.executor.Execute(h.ctx, campaign, lead, step)
		require.NoError(t, err)
		assert.Equal(t, StepStatusSkipped, result.Status)
		assert.Equal(t, CodeConnectionNotAccepted, result.ErrorCode)
	}
	assert.Len(t, h.records(lead.ID, models.ActionMessageSkipped), 1)
	assert.Empty(t, h.linkedIn.GetCalls(services.LinkedInCallMessage))
	assert.Equal(t, int64(100), h.balance())

	_, err := h.store.Actions().SaveOnce(h.ctx, &models.ActionRecord{
		TenantID:   testTenant,
		CampaignID: campaign.ID,
		LeadID:     lead.ID,
		ActionType: models.ActionConnectionAccepted,
		Status:     models.ActionStatusSuccess,
		CreatedAt:  h.now,
	})
	require.NoError(t, err)

	result, err := h.executor.Execute(h.ctx, campaign, lead, step)
	require.NoError(t, err)
	assert.Equal(t, StepStatusSuccess, result.Status)

	calls := h.linkedIn.GetCalls(services.LinkedInCallMessage)
	require.Len(t, calls, 1)
	assert.Equal(t, "Thanks "+lead.FirstName, calls[0].Text)
	assert.Equal(t, int64(99), h.balance())
}

func TestStepExecutor_OutreachChannels(t *testing.T) {
	tests := []struct {
		name          string
		spec          models.StepSpec
		mutate        func(*models.CampaignLead)
		wantStatus    StepStatus
		wantCode      string
		wantChannel   string
		wantRecipient string
		wantBalance   int64
	}{
		{
			name:          "email",
			spec:          &models.EmailSpec{Subject: "Hello {{first_name}}", Body: "About {{company}}"},
			mutate:        func(l *models.CampaignLead) { l.Email = "ada.lovelace@example.com" },
			wantStatus:    StepStatusSuccess,
			wantChannel:   services.OutreachChannelEmail,
			wantRecipient: "ada.lovelace@example.com",
			wantBalance:   99,
		},
		{
			name:        "malformed email",
			spec:        &models.EmailSpec{Subject: "Hello", Body: "Body"},
			mutate:      func(l *models.CampaignLead) { l.Email = "not-an-email" },
			wantStatus:  StepStatusFailed,
			wantCode:    CodeContactInvalid,
			wantBalance: 100,
		},
		{
			name:        "email missing",
			spec:        &models.EmailSpec{Subject: "Hello", Body: "Body"},
			mutate:      func(l *models.CampaignLead) { l.Email = "" },
			wantStatus:  StepStatusFailed,
			wantCode:    CodeContactMissing,
			wantBalance: 100,
		},
		{
			name:          "whatsapp normalizes to E.164",
			spec:          &models.WhatsAppSpec{Message: "Hi {{first_name}}"},
			mutate:        func(l *models.CampaignLead) { l.Phone = "(650) 253-0000" },
			wantStatus:    StepStatusSuccess,
			wantChannel:   services.OutreachChannelWhatsApp,
			wantRecipient: "+16502530000",
			wantBalance:   99,
		},
		{
			name:        "whatsapp invalid number",
			spec:        &models.WhatsAppSpec{Message: "Hi"},
			mutate:      func(l *models.CampaignLead) { l.Phone = "12345" },
			wantStatus:  StepStatusFailed,
			wantCode:    CodeContactInvalid,
			wantBalance: 100,
		},
		{
			name:          "voice uses the enriched phone",
			spec:          &models.VoiceSpec{Script: "Intro for {{first_name}}", AgentID: "agent-7"},
			mutate:        func(l *models.CampaignLead) { l.EnrichedPhone = utils.ToPtr("+44 20 7031 3000") },
			wantStatus:    StepStatusSuccess,
			wantChannel:   services.OutreachChannelVoice,
			wantRecipient: "+442070313000",
			wantBalance:   97,
		},
		{
			name:        "voice without phone",
			spec:        &models.VoiceSpec{Script: "Intro"},
			wantStatus:  StepStatusFailed,
			wantCode:    CodeContactMissing,
			wantBalance: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fx.Wallet(testTenant, 100)
			campaign := h.fx.Campaign(testTenant, tt.spec)
			lead := h.fx.Lead(campaign, func(l *models.CampaignLead) {
				l.Phone = ""
				if tt.mutate != nil {
					tt.mutate(l)
				}
			})

			result, err := h.executor.Execute(h.ctx, campaign, lead, &campaign.Steps[0])
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.False(t, result.Retryable)
			assert.Equal(t, tt.wantBalance, h.balance())

			sent := h.outreach.GetSentMessages()
			if tt.wantStatus != StepStatusSuccess {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantChannel, sent[0].Channel)
			assert.Equal(t, tt.wantRecipient, sent[0].Recipient)
			assert.NotContains(t, sent[0].Body, "{{")
		})
	}
}

func TestStepExecutor_InvalidConfigIsRecorded(t *testing.T) {
	h := newHarness(t)
	campaign := connectCampaign(h)
	lead := h.fx.Lead(campaign)
	broken := &models.CampaignStep{
		ID:         4242,
		CampaignID: campaign.ID,
		Type:       models.StepTypeLinkedInMessage,
		StepOrder:  2,
		Config:     models.StepConfig(`{"message":""}`),
	}

	result, err := h.executor.Execute(h.ctx, campaign, lead, broken)
	require.NoError(t, err)
	assert.Equal(t, StepStatusFailed, result.Status)
	assert.Equal(t, CodeStepConfigInvalid, result.ErrorCode)
	assert.False(t, result.Retryable)

	records := h.records(lead.ID, models.ActionMessageSent)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionStatusFailed, records[0].Status)
	assert.Equal(t, CodeStepConfigInvalid, records[0].ErrorCode)
}

func TestStepExecutor_DelayAndCondition(t *testing.T) {
	h := newHarness(t)
	campaign := h.fx.Campaign(testTenant,
		&models.DelaySpec{Days: 1, Hours: 2},
		&models.ConditionSpec{Check: models.ConditionConnectionAccepted, OnFalse: models.ConditionOnFalseStop},
		&models.ConditionSpec{Check: models.ConditionHasPhone},
	)
	lead := h.fx.Lead(campaign, func(l *models.CampaignLead) { l.Phone = "" })

	result, err := h.executor.Execute(h.ctx, campaign, lead, &campaign.Steps[0])
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour, result.Delay)
	delays := h.records(lead.ID, models.ActionDelayScheduled)
	require.Len(t, delays, 1)
	assert.Equal(t, float64(26*3600), metadataOf(t, delays[0])["delay_seconds"])

	result, err = h.executor.Execute(h.ctx, campaign, lead, &campaign.Steps[1])
	require.NoError(t, err)
	require.NotNil(t, result.ConditionMet)
	assert.False(t, *result.ConditionMet)

	_, err = h.store.Actions().SaveOnce(h.ctx, &models.ActionRecord{
		TenantID:   testTenant,
		CampaignID: campaign.ID,
		LeadID:     lead.ID,
		ActionType: models.ActionConnectionAccepted,
		Status:     models.ActionStatusSuccess,
		CreatedAt:  h.now,
	})
	require.NoError(t, err)

	result, err = h.executor.Execute(h.ctx, campaign, lead, &campaign.Steps[1])
	require.NoError(t, err)
	assert.True(t, *result.ConditionMet)

	result, err = h.executor.Execute(h.ctx, campaign, lead, &campaign.Steps[2])
	require.NoError(t, err)
	assert.False(t, *result.ConditionMet)
	assert.Len(t, h.records(lead.ID, models.ActionConditionEvaluated), 3)
}

func TestRenderTemplate(t *testing.T) {
	lead := &models.CampaignLead{FirstName: "Ada", LastName: "Lovelace", Company: "Analytical", Title: "Engineer"}

	assert.Equal(t, "Hi Ada Lovelace of Analytical (Engineer)",
		RenderTemplate("Hi {{first_name}} {{last_name}} of {{company}} ({{title}})", lead))
	assert.Equal(t, "plain text", RenderTemplate("plain text", lead))
	assert.Equal(t, "{{first_name}}", RenderTemplate("{{first_name}}", nil))
}

func TestValidateStep(t *testing.T) {
	valid, err := models.NewCampaignStep(1, 1, &models.DelaySpec{Days: 2})
	require.NoError(t, err)
	spec, err := ValidateStep(valid)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, spec.(*models.DelaySpec).Duration())

	tooLong, err := models.NewCampaignStep(1, 1, &models.DelaySpec{Hours: 30})
	require.NoError(t, err)
	_, err = ValidateStep(tooLong)
	assert.True(t, IsStepConfigInvalid(err))

	unknown := &models.CampaignStep{Type: "fax", StepOrder: 1}
	_, err = ValidateStep(unknown)
	assert.ErrorIs(t, err, ErrStepConfigInvalid)
}
