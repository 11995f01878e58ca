package businessflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	testutil "github.com/techiemaya-admin/lad-feature-campaigns-sub003/testing"
	"go.uber.org/zap/zaptest"
)

const testTenant = "tenant-a"

var testPrices = config.CreditsConfig{
	Enabled:         true,
	LeadGeneration:  1,
	ContactReveal:   5,
	LinkedInConnect: 2,
	LinkedInMessage: 1,
	LinkedInVisit:   1,
	LinkedInFollow:  1,
	EmailSend:       1,
	WhatsAppSend:    1,
	VoiceCall:       3,
}

// testHarness wires every flow over an in-memory store, mock providers and a movable clock
type testHarness struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	fx    *testutil.Fixtures
	store *testutil.MemoryStore

	linkedIn *services.MockLinkedInProvider
	outreach *services.MockOutreachProvider
	source   *services.MockLeadSource
	cache    services.RevealCache

	providerCfg  config.ProviderConfig
	schedulerCfg config.SchedulerConfig
	leadGenCfg   config.LeadGenConfig
	// connect cooldown per account, off by default
	cooldown time.Duration

	credits     CreditFlow
	quota       QuotaFlow
	enrichment  EnrichmentFlow
	executor    StepExecutorFlow
	progression LeadProgression
	runner      CampaignRunFlow
	reconciler  AcceptanceReconcileFlow
	lifecycle   CampaignLifecycleFlow

	queue     services.TaskQueue
	locker    services.CampaignLocker
	publisher services.EventPublisher
}

func newHarness(t *testing.T, opts ...func(h *testHarness)) *testHarness {
	t.Helper()

	fx := testutil.NewFixtures()
	h := &testHarness{
		t:        t,
		ctx:      context.Background(),
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		fx:       fx,
		store:    fx.Store,
		linkedIn: services.NewMockLinkedInProvider(),
		outreach: services.NewMockOutreachProvider(),
		source:   services.NewMockLeadSource(),
		providerCfg: config.ProviderConfig{
			Domain:                  "mock",
			CallTimeout:             5 * time.Second,
			MonthlyConnectNoteLimit: 5,
			DefaultPhoneRegion:      "US",
		},
		schedulerCfg: config.SchedulerConfig{
			CampaignTimeout: time.Minute,
			LeadBatchSize:   50,
			MessageRecheck:  4 * time.Hour,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.build()
	return h
}

func (h *testHarness) clock() time.Time { return h.now }

func (h *testHarness) build() {
	logger := zaptest.NewLogger(h.t)
	s := h.store

	h.credits = NewCreditFlow(s.Wallets(), s.CreditTransactions(), s.TxManager(), testPrices, logger)
	h.quota = NewQuotaFlow(s.Campaigns(), s.Leads(), s.Actions(), h.source, h.credits, h.leadGenCfg, h.clock, logger)
	h.enrichment = NewEnrichmentFlow(s.Leads(), s.Actions(), h.source, h.cache, h.credits, h.clock, logger)
	h.executor = NewStepExecutorFlow(s.Leads(), s.Actions(), s.Accounts(), h.linkedIn, h.outreach,
		h.quota, h.enrichment, h.credits, NewAccountRateLimiter(h.cooldown), h.providerCfg, h.clock, logger)
	h.progression = NewLeadProgression(s.Leads(), h.schedulerCfg, h.clock)
	h.runner = NewCampaignRunFlow(s.Campaigns(), s.Leads(), s.Actions(), h.executor, h.progression,
		h.publisher, h.locker, h.schedulerCfg, h.clock, logger)
	h.reconciler = NewAcceptanceReconcileFlow(s.Accounts(), s.Campaigns(), s.Leads(), s.Actions(),
		h.linkedIn, h.executor, h.progression, config.ReconcilerConfig{Lookback: 24 * time.Hour}, h.clock, logger)
	h.lifecycle = NewCampaignLifecycleFlow(s.Campaigns(), s.Steps(), s.Leads(), s.TxManager(), h.runner, h.queue, h.clock, logger)
}

func (h *testHarness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *testHarness) step(campaign *models.Campaign, t models.StepType) *models.CampaignStep {
	h.t.Helper()
	for i := range campaign.Steps {
		if campaign.Steps[i].Type == t {
			return &campaign.Steps[i]
		}
	}
	h.t.Fatalf("campaign %d has no %s step", campaign.ID, t)
	return nil
}

func (h *testHarness) balance() int64 {
	h.t.Helper()
	b, err := h.credits.Balance(h.ctx, testTenant)
	require.NoError(h.t, err)
	return b
}

// records returns ledger entries of one type for a lead, in insertion order
func (h *testHarness) records(leadID uint, actionType models.ActionType) []models.ActionRecord {
	out := make([]models.ActionRecord, 0)
	for _, r := range h.store.ActionRecords() {
		if r.LeadID == leadID && r.ActionType == actionType {
			out = append(out, r)
		}
	}
	return out
}

func metadataOf(t *testing.T, r models.ActionRecord) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(r.Metadata, &out))
	return out
}

func withCooldown(d time.Duration) func(h *testHarness) {
	return func(h *testHarness) { h.cooldown = d }
}

func rejectWith(status int, msg string) func(services.MockLinkedInCall) (*services.ActionResult, error) {
	return func(services.MockLinkedInCall) (*services.ActionResult, error) {
		return &services.ActionResult{StatusCode: status, Error: msg}, nil
	}
}
