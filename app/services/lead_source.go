package services

import (
	"context"
	"sync"
)

// LeadCandidate is a person returned by a lead search
type LeadCandidate struct {
	PersonID    string   `json:"person_id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Company     string   `json:"company,omitempty"`
	Title       string   `json:"title,omitempty"`
	LinkedInURL string   `json:"linkedin_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RevealResult is the contact data unlocked for a person
type RevealResult struct {
	PersonID    string `json:"person_id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// LeadSource searches people and reveals their contact data
type LeadSource interface {
	// SearchPeople returns one 1-based page of candidates
	SearchPeople(ctx context.Context, filters map[string]any, page, perPage int) ([]LeadCandidate, error)
	RevealContact(ctx context.Context, personID string) (*RevealResult, error)
}

// MockSearchCall is one recorded search
type MockSearchCall struct {
	Page    int
	PerPage int
}

// MockLeadSource serves People in pages and answers reveals from Reveals
type MockLeadSource struct {
	mu sync.Mutex

	People    []LeadCandidate
	Reveals   map[string]*RevealResult
	SearchErr error
	RevealErr error

	searches []MockSearchCall
	reveals  []string
}

// NewMockLeadSource creates a new mock lead source
func NewMockLeadSource(people ...LeadCandidate) *MockLeadSource {
	return &MockLeadSource{
		People:  people,
		Reveals: make(map[string]*RevealResult),
	}
}

// SearchPeople returns the requested page of People
func (m *MockLeadSource) SearchPeople(ctx context.Context, filters map[string]any, page, perPage int) ([]LeadCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searches = append(m.searches, MockSearchCall{Page: page, PerPage: perPage})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if page < 1 || perPage <= 0 {
		return []LeadCandidate{}, nil
	}

	start := (page - 1) * perPage
	if start >= len(m.People) {
		return []LeadCandidate{}, nil
	}
	end := min(start+perPage, len(m.People))
	return append([]LeadCandidate(nil), m.People[start:end]...), nil
}

// RevealContact returns the configured reveal, or an empty result
func (m *MockLeadSource) RevealContact(ctx context.Context, personID string) (*RevealResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reveals = append(m.reveals, personID)
	if m.RevealErr != nil {
		return nil, m.RevealErr
	}
	if r, ok := m.Reveals[personID]; ok {
		out := *r
		return &out, nil
	}
	return &RevealResult{PersonID: personID}, nil
}

// GetSearches returns the recorded searches
func (m *MockLeadSource) GetSearches() []MockSearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockSearchCall(nil), m.searches...)
}

// GetReveals returns the person ids revealed so far
func (m *MockLeadSource) GetReveals() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reveals...)
}
