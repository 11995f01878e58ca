package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/dto"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap/zaptest"
)

const campaignUUID = "6f1c1d6e-1f4b-4f38-9a51-2f4f6a0b7d10"

type fakeLifecycle struct {
	err        error
	lastCreate *dto.CreateCampaignRequest
	lastAction *dto.CampaignActionRequest
	lastSend   *dto.SendNowRequest
}

func (f *fakeLifecycle) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CampaignResponse{UUID: campaignUUID, Name: req.Name, Status: "draft"}, nil
}

func (f *fakeLifecycle) GetCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignResponse, error) {
	f.lastAction = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CampaignResponse{UUID: req.CampaignUUID, Status: "running"}, nil
}

func (f *fakeLifecycle) status(req *dto.CampaignActionRequest, status string) (*dto.CampaignStatusResponse, error) {
	f.lastAction = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CampaignStatusResponse{Message: "Campaign " + status, UUID: req.CampaignUUID, Status: status}, nil
}

func (f *fakeLifecycle) StartCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	return f.status(req, "running")
}

func (f *fakeLifecycle) PauseCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	return f.status(req, "paused")
}

func (f *fakeLifecycle) StopCampaign(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatusResponse, error) {
	return f.status(req, "stopped")
}

func (f *fakeLifecycle) RunNow(ctx context.Context, req *dto.CampaignActionRequest) (*dto.EnqueueTaskResponse, error) {
	f.lastAction = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.EnqueueTaskResponse{Message: "Queued", TaskID: "task-1", Kind: "run_campaign"}, nil
}

func (f *fakeLifecycle) SendNow(ctx context.Context, req *dto.SendNowRequest) (*dto.EnqueueTaskResponse, error) {
	f.lastSend = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.EnqueueTaskResponse{Message: "Queued", TaskID: "task-2", Kind: "send_now"}, nil
}

func (f *fakeLifecycle) GetCampaignStats(ctx context.Context, req *dto.CampaignActionRequest) (*dto.CampaignStatsResponse, error) {
	f.lastAction = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CampaignStatsResponse{UUID: req.CampaignUUID, LeadsTotal: 3}, nil
}

type fakeReconciler struct {
	mu       sync.Mutex
	seen     []services.Connection
	outcomes map[string]*businessflow.AcceptanceOutcome
	errs     map[string]error
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) (*businessflow.ReconcileSummary, error) {
	return &businessflow.ReconcileSummary{}, nil
}

func (f *fakeReconciler) ReconcileTenant(ctx context.Context, tenantID string) (*businessflow.ReconcileSummary, error) {
	return &businessflow.ReconcileSummary{}, nil
}

func (f *fakeReconciler) HandleAcceptedConnection(ctx context.Context, tenantID string, conn services.Connection) (*businessflow.AcceptanceOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, conn)
	if err := f.errs[conn.ProfileURL]; err != nil {
		return nil, err
	}
	if o := f.outcomes[conn.ProfileURL]; o != nil {
		return o, nil
	}
	return &businessflow.AcceptanceOutcome{}, nil
}

// withTenant stands in for the auth middleware
func withTenant(tenant string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if tenant != "" {
			c.Locals(utils.TenantIDKey, tenant)
		}
		return c.Next()
	}
}

func newCampaignApp(t *testing.T, lifecycle businessflow.CampaignLifecycleFlow, tenant string) *fiber.App {
	t.Helper()
	h := NewCampaignHandler(lifecycle, zaptest.NewLogger(t))
	app := fiber.New()
	g := app.Group("/api/v1/campaigns", withTenant(tenant))
	g.Post("/", h.CreateCampaign)
	g.Get("/:uuid", h.GetCampaign)
	g.Get("/:uuid/stats", h.GetCampaignStats)
	g.Post("/:uuid/start", h.StartCampaign)
	g.Post("/:uuid/pause", h.PauseCampaign)
	g.Post("/:uuid/stop", h.StopCampaign)
	g.Post("/:uuid/run", h.RunNow)
	g.Post("/:uuid/send-now", h.SendNow)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func errorCode(t *testing.T, resp dto.APIResponse) string {
	t.Helper()
	detail, ok := resp.Error.(map[string]any)
	require.True(t, ok, "error detail missing: %#v", resp.Error)
	code, _ := detail["code"].(string)
	return code
}

const validCreateBody = `{"name":"Q3 outreach","timezone":"UTC","leads_per_day":25,
	"steps":[{"type":"lead_generation","order":1,"config":{"leads_per_day":25}},
	         {"type":"linkedin_connect","order":2}]}`

func TestCreateCampaign(t *testing.T) {
	t.Run("stores the tenant from the token", func(t *testing.T) {
		lifecycle := &fakeLifecycle{}
		status, resp := do(t, newCampaignApp(t, lifecycle, "tenant-a"), http.MethodPost, "/api/v1/campaigns", validCreateBody)

		assert.Equal(t, fiber.StatusCreated, status)
		assert.True(t, resp.Success)
		require.NotNil(t, lifecycle.lastCreate)
		assert.Equal(t, "tenant-a", lifecycle.lastCreate.TenantID)
		assert.Len(t, lifecycle.lastCreate.Steps, 2)
	})

	t.Run("tenant cannot be supplied in the body", func(t *testing.T) {
		lifecycle := &fakeLifecycle{}
		body := `{"tenant_id":"tenant-b","name":"x","steps":[{"type":"linkedin_visit","order":1}]}`
		status, _ := do(t, newCampaignApp(t, lifecycle, "tenant-a"), http.MethodPost, "/api/v1/campaigns", body)

		assert.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, "tenant-a", lifecycle.lastCreate.TenantID)
	})

	tests := []struct {
		name       string
		tenant     string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "missing tenant", body: validCreateBody, wantStatus: fiber.StatusUnauthorized, wantCode: "MISSING_TENANT"},
		{name: "malformed json", tenant: "t", body: `{"name":`, wantStatus: fiber.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "no steps", tenant: "t", body: `{"name":"x","steps":[]}`, wantStatus: fiber.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "unknown timezone", tenant: "t", body: `{"name":"x","timezone":"Mars/Base","steps":[{"type":"delay","order":1}]}`, wantStatus: fiber.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{
			name:       "invalid step config",
			tenant:     "t",
			body:       validCreateBody,
			err:        businessflow.NewBusinessError("STEP_CONFIG_INVALID", "Campaign step validation failed", businessflow.ErrStepConfigInvalid),
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "STEP_CONFIG_INVALID",
		},
		{
			name:       "storage failure",
			tenant:     "t",
			body:       validCreateBody,
			err:        businessflow.NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", errors.New("db down")),
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "CAMPAIGN_CREATION_FAILED",
		},
		{
			name:       "plain error",
			tenant:     "t",
			body:       validCreateBody,
			err:        errors.New("boom"),
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "CAMPAIGN_CREATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := do(t, newCampaignApp(t, &fakeLifecycle{err: tt.err}, tt.tenant), http.MethodPost, "/api/v1/campaigns", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, errorCode(t, resp))
		})
	}
}

func TestCampaignActions(t *testing.T) {
	base := "/api/v1/campaigns/" + campaignUUID

	t.Run("routes carry tenant and uuid", func(t *testing.T) {
		cases := []struct {
			method, path string
			wantStatus   int
		}{
			{http.MethodGet, base, fiber.StatusOK},
			{http.MethodGet, base + "/stats", fiber.StatusOK},
			{http.MethodPost, base + "/start", fiber.StatusOK},
			{http.MethodPost, base + "/pause", fiber.StatusOK},
			{http.MethodPost, base + "/stop", fiber.StatusOK},
			{http.MethodPost, base + "/run", fiber.StatusAccepted},
		}
		for _, c := range cases {
			lifecycle := &fakeLifecycle{}
			status, resp := do(t, newCampaignApp(t, lifecycle, "tenant-a"), c.method, c.path, "")
			assert.Equal(t, c.wantStatus, status, c.path)
			assert.True(t, resp.Success, c.path)
			require.NotNil(t, lifecycle.lastAction, c.path)
			assert.Equal(t, "tenant-a", lifecycle.lastAction.TenantID)
			assert.Equal(t, campaignUUID, lifecycle.lastAction.CampaignUUID)
		}
	})

	t.Run("malformed uuid is rejected before the flow", func(t *testing.T) {
		lifecycle := &fakeLifecycle{}
		status, resp := do(t, newCampaignApp(t, lifecycle, "tenant-a"), http.MethodPost, "/api/v1/campaigns/not-a-uuid/start", "")
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		assert.Nil(t, lifecycle.lastAction)
	})

	errs := []struct {
		err        error
		wantStatus int
	}{
		{businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", businessflow.ErrCampaignNotFound), fiber.StatusNotFound},
		{businessflow.NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Campaign access denied", businessflow.ErrCampaignAccessDenied), fiber.StatusForbidden},
		{businessflow.NewBusinessErrorf("CAMPAIGN_TRANSITION_INVALID", "Cannot start a %s campaign", businessflow.ErrCampaignTransitionInvalid, "stopped"), fiber.StatusConflict},
		{businessflow.NewBusinessError("CAMPAIGN_BUSY", "Campaign is busy", businessflow.ErrCampaignBusy), fiber.StatusConflict},
		{businessflow.NewBusinessError("CAMPAIGN_HAS_NO_STEPS", "Campaign has no steps", businessflow.ErrCampaignHasNoSteps), fiber.StatusConflict},
		{businessflow.NewBusinessError("QUEUE_NOT_AVAILABLE", "Queue not available", businessflow.ErrQueueNotAvailable), fiber.StatusServiceUnavailable},
		{businessflow.NewBusinessError("CAMPAIGN_START_FAILED", "Campaign start failed", errors.New("db down")), fiber.StatusInternalServerError},
	}
	for _, e := range errs {
		code := businessflow.ErrorCode(e.err)
		t.Run(code, func(t *testing.T) {
			status, resp := do(t, newCampaignApp(t, &fakeLifecycle{err: e.err}, "tenant-a"), http.MethodPost, base+"/start", "")
			assert.Equal(t, e.wantStatus, status)
			assert.Equal(t, code, errorCode(t, resp))
		})
	}
}

func TestSendNow(t *testing.T) {
	path := "/api/v1/campaigns/" + campaignUUID + "/send-now"

	lifecycle := &fakeLifecycle{}
	status, resp := do(t, newCampaignApp(t, lifecycle, "tenant-a"), http.MethodPost, path, `{"lead_id":42}`)
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.True(t, resp.Success)
	require.NotNil(t, lifecycle.lastSend)
	assert.Equal(t, uint(42), lifecycle.lastSend.LeadID)
	assert.Equal(t, campaignUUID, lifecycle.lastSend.CampaignUUID)
	assert.Equal(t, "tenant-a", lifecycle.lastSend.TenantID)

	status, resp = do(t, newCampaignApp(t, &fakeLifecycle{}, "tenant-a"), http.MethodPost, path, `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))

	notActive := businessflow.NewBusinessError("LEAD_NOT_ACTIVE", "Lead is not active", businessflow.ErrLeadNotActive)
	status, resp = do(t, newCampaignApp(t, &fakeLifecycle{err: notActive}, "tenant-a"), http.MethodPost, path, `{"lead_id":42}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "LEAD_NOT_ACTIVE", errorCode(t, resp))
}

func newWebhookApp(t *testing.T, reconciler businessflow.AcceptanceReconcileFlow, now time.Time) *fiber.App {
	t.Helper()
	h := NewWebhookHandler(reconciler, func() time.Time { return now }, zaptest.NewLogger(t))
	app := fiber.New()
	app.Post("/api/v1/webhooks/linkedin/connections", withTenant("tenant-a"), h.LinkedInConnections)
	return app
}

func TestLinkedInConnectionsWebhook(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path := "/api/v1/webhooks/linkedin/connections"

	t.Run("summarises outcomes", func(t *testing.T) {
		reconciler := &fakeReconciler{
			outcomes: map[string]*businessflow.AcceptanceOutcome{
				"https://linkedin.com/in/ada":  {Matched: true, Recorded: true, Unblocked: true},
				"https://linkedin.com/in/alan": {Matched: true},
			},
			errs: map[string]error{"https://linkedin.com/in/grace": errors.New("db down")},
		}
		body := `{"connections":[
			{"profile_url":"https://linkedin.com/in/ada","provider_id":"p1","connected_at":"2026-03-01T08:00:00Z"},
			{"profile_url":"https://linkedin.com/in/alan"},
			{"profile_url":"https://linkedin.com/in/grace"},
			{"profile_url":"https://linkedin.com/in/unknown"}]}`

		status, resp := do(t, newWebhookApp(t, reconciler, now), http.MethodPost, path, body)
		require.Equal(t, fiber.StatusOK, status)

		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 4, data["received"])
		assert.EqualValues(t, 2, data["matched"])
		assert.EqualValues(t, 1, data["accepted"])
		assert.EqualValues(t, 1, data["unblocked"])
		assert.EqualValues(t, 1, data["failed"])

		require.Len(t, reconciler.seen, 4)
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), reconciler.seen[0].ConnectedAt)
		assert.Equal(t, "p1", reconciler.seen[0].ProviderID)
		assert.Equal(t, now, reconciler.seen[1].ConnectedAt)
	})

	t.Run("all failures surface as server error", func(t *testing.T) {
		reconciler := &fakeReconciler{errs: map[string]error{"https://linkedin.com/in/ada": errors.New("db down")}}
		status, resp := do(t, newWebhookApp(t, reconciler, now), http.MethodPost, path, `{"connections":[{"profile_url":"https://linkedin.com/in/ada"}]}`)
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, "WEBHOOK_HANDLING_FAILED", errorCode(t, resp))
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		reconciler := &fakeReconciler{}
		status, resp := do(t, newWebhookApp(t, reconciler, now), http.MethodPost, path, `{"connections":[]}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		assert.Empty(t, reconciler.seen)
	})
}
