package services

import (
	"context"
	"sync"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// LinkedIn call names recorded by the mock
const (
	LinkedInCallConnect = "connect"
	LinkedInCallMessage = "message"
	LinkedInCallFollow  = "follow"
	LinkedInCallVisit   = "visit"
)

// MockLinkedInCall is one recorded provider call
type MockLinkedInCall struct {
	Method     string
	AccountID  string
	ProfileURL string
	Text       string
	CalledAt   time.Time
}

// MockLinkedInProvider records calls and answers with success unless Respond says otherwise
type MockLinkedInProvider struct {
	mu    sync.Mutex
	calls []MockLinkedInCall

	// Respond overrides the result of an outbound call
	Respond func(call MockLinkedInCall) (*ActionResult, error)
	// Connections are returned by GetRecentConnections, keyed by external account id
	Connections map[string][]Connection
	// ConnectionsErr fails GetRecentConnections for the given external account ids
	ConnectionsErr map[string]error
}

// NewMockLinkedInProvider creates a new mock LinkedIn provider
func NewMockLinkedInProvider() *MockLinkedInProvider {
	return &MockLinkedInProvider{
		calls:          make([]MockLinkedInCall, 0),
		Connections:    make(map[string][]Connection),
		ConnectionsErr: make(map[string]error),
	}
}

func (m *MockLinkedInProvider) do(method string, account *models.ProviderAccount, profileURL, text string) (*ActionResult, error) {
	call := MockLinkedInCall{
		Method:     method,
		AccountID:  account.ExternalAccountID,
		ProfileURL: profileURL,
		Text:       text,
		CalledAt:   utils.UTCNow(),
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		res, err := respond(call)
		if res != nil && res.AccountUsed == "" {
			res.AccountUsed = account.ExternalAccountID
		}
		return res, err
	}
	return &ActionResult{Success: true, AccountUsed: account.ExternalAccountID, StatusCode: 200}, nil
}

// SendConnectionRequest records a connection request
func (m *MockLinkedInProvider) SendConnectionRequest(ctx context.Context, account *models.ProviderAccount, profileURL, message string) (*ActionResult, error) {
	return m.do(LinkedInCallConnect, account, profileURL, message)
}

// SendMessage records a direct message
func (m *MockLinkedInProvider) SendMessage(ctx context.Context, account *models.ProviderAccount, profileURL, text string) (*ActionResult, error) {
	return m.do(LinkedInCallMessage, account, profileURL, text)
}

// FollowProfile records a follow
func (m *MockLinkedInProvider) FollowProfile(ctx context.Context, account *models.ProviderAccount, profileURL string) (*ActionResult, error) {
	return m.do(LinkedInCallFollow, account, profileURL, "")
}

// GetProfileDetails records a profile visit
func (m *MockLinkedInProvider) GetProfileDetails(ctx context.Context, account *models.ProviderAccount, profileURL string) (*ProfileResult, error) {
	res, err := m.do(LinkedInCallVisit, account, profileURL, "")
	if err != nil || res == nil {
		return nil, err
	}
	return &ProfileResult{ActionResult: *res}, nil
}

// GetRecentConnections returns the configured connections accepted at or after since
func (m *MockLinkedInProvider) GetRecentConnections(ctx context.Context, account *models.ProviderAccount, since time.Time) ([]Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ConnectionsErr[account.ExternalAccountID]; err != nil {
		return nil, err
	}

	out := make([]Connection, 0)
	for _, c := range m.Connections[account.ExternalAccountID] {
		if !c.ConnectedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddConnection makes a connection visible to GetRecentConnections
func (m *MockLinkedInProvider) AddConnection(accountID string, c Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connections[accountID] = append(m.Connections[accountID], c)
}

// GetCalls returns recorded calls, optionally filtered by method
func (m *MockLinkedInProvider) GetCalls(method string) []MockLinkedInCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockLinkedInCall, 0, len(m.calls))
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ClearCalls clears the recorded calls
func (m *MockLinkedInProvider) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockLinkedInCall, 0)
}
