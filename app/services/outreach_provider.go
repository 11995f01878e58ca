package services

import (
	"context"
	"sync"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// OutreachProvider sends email, WhatsApp and voice outreach
type OutreachProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) (*ActionResult, error)
	SendWhatsApp(ctx context.Context, toE164, message, templateName string) (*ActionResult, error)
	PlaceCall(ctx context.Context, toE164, script, agentID string) (*ActionResult, error)
}

// Outreach channels recorded by the mock
const (
	OutreachChannelEmail    = "email"
	OutreachChannelWhatsApp = "whatsapp"
	OutreachChannelVoice    = "voice"
)

// MockOutreachMessage represents a mock outbound message or call
type MockOutreachMessage struct {
	Channel   string
	Recipient string
	Subject   string
	Body      string
	SentAt    time.Time
}

// MockOutreachProvider implements OutreachProvider for testing and the mock provider domain
type MockOutreachProvider struct {
	mu   sync.Mutex
	sent []MockOutreachMessage

	// Respond overrides the result of a send
	Respond func(msg MockOutreachMessage) (*ActionResult, error)
}

// NewMockOutreachProvider creates a new mock outreach provider
func NewMockOutreachProvider() *MockOutreachProvider {
	return &MockOutreachProvider{sent: make([]MockOutreachMessage, 0)}
}

func (m *MockOutreachProvider) send(msg MockOutreachMessage) (*ActionResult, error) {
	msg.SentAt = utils.UTCNow()

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(msg)
	}
	return &ActionResult{Success: true, StatusCode: 202}, nil
}

// SendEmail sends a mock email
func (m *MockOutreachProvider) SendEmail(ctx context.Context, to, subject, body string) (*ActionResult, error) {
	return m.send(MockOutreachMessage{Channel: OutreachChannelEmail, Recipient: to, Subject: subject, Body: body})
}

// SendWhatsApp sends a mock WhatsApp message
func (m *MockOutreachProvider) SendWhatsApp(ctx context.Context, toE164, message, templateName string) (*ActionResult, error) {
	return m.send(MockOutreachMessage{Channel: OutreachChannelWhatsApp, Recipient: toE164, Subject: templateName, Body: message})
}

// PlaceCall places a mock call
func (m *MockOutreachProvider) PlaceCall(ctx context.Context, toE164, script, agentID string) (*ActionResult, error) {
	return m.send(MockOutreachMessage{Channel: OutreachChannelVoice, Recipient: toE164, Subject: agentID, Body: script})
}

// GetSentMessages returns all sent mock messages
func (m *MockOutreachProvider) GetSentMessages() []MockOutreachMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockOutreachMessage(nil), m.sent...)
}

// ClearSentMessages clears the sent messages list
func (m *MockOutreachProvider) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = make([]MockOutreachMessage, 0)
}
