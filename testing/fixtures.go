package testing

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// NewCampaign builds a running campaign whose steps follow the given specs in order
func NewCampaign(tenantID string, specs ...models.StepSpec) *models.Campaign {
	campaign := &models.Campaign{
		TenantID:       tenantID,
		Name:           gofakeit.Company() + " outreach",
		Status:         models.CampaignStatusRunning,
		ExecutionState: models.ExecutionStateActive,
		Config:         models.CampaignConfig{Timezone: "UTC"},
	}
	for i, spec := range specs {
		step, err := models.NewCampaignStep(0, i+1, spec)
		if err != nil {
			panic(fmt.Sprintf("invalid step spec %T: %v", spec, err))
		}
		if lg, ok := spec.(*models.LeadGenerationSpec); ok {
			campaign.Config.Quota.LeadsPerDay = lg.LeadsPerDay
		}
		campaign.Steps = append(campaign.Steps, *step)
	}
	return campaign
}

// NewLead builds an active lead at the first per-lead step of campaign
func NewLead(campaign *models.Campaign) *models.CampaignLead {
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	handle := strings.ToLower(first + "-" + last + "-" + gofakeit.DigitN(4))
	order := 0
	for _, st := range campaign.Steps {
		if st.Type.PerLead() {
			order = st.StepOrder
			break
		}
	}
	return &models.CampaignLead{
		TenantID:         campaign.TenantID,
		CampaignID:       campaign.ID,
		SourcePersonID:   "person-" + gofakeit.UUID(),
		FirstName:        first,
		LastName:         last,
		Email:            strings.ToLower(first+"."+last) + "@" + gofakeit.DomainName(),
		Company:          gofakeit.Company(),
		Title:            gofakeit.JobTitle(),
		LinkedInURL:      utils.ToPtr("https://www.linkedin.com/in/" + handle),
		Status:           models.LeadStatusActive,
		CurrentStepOrder: order,
	}
}

// NewCandidates builds n search results with stable person ids
func NewCandidates(prefix string, n int) []services.LeadCandidate {
	out := make([]services.LeadCandidate, 0, n)
	for i := range n {
		first, last := gofakeit.FirstName(), gofakeit.LastName()
		out = append(out, services.LeadCandidate{
			PersonID:    fmt.Sprintf("%s-%03d", prefix, i),
			FirstName:   first,
			LastName:    last,
			Company:     gofakeit.Company(),
			Title:       gofakeit.JobTitle(),
			LinkedInURL: fmt.Sprintf("https://www.linkedin.com/in/%s-%03d", prefix, i),
		})
	}
	return out
}

// NewProviderAccount builds an active LinkedIn account
func NewProviderAccount(tenantID, externalID string) *models.ProviderAccount {
	return &models.ProviderAccount{
		TenantID:          tenantID,
		Provider:          models.ProviderLinkedIn,
		ExternalAccountID: externalID,
		DisplayName:       gofakeit.Name(),
		Status:            models.ProviderAccountStatusActive,
	}
}

// NewWallet builds a wallet holding balance credits
func NewWallet(tenantID string, balance int64) *models.CreditWallet {
	return &models.CreditWallet{TenantID: tenantID, Balance: balance}
}

// Fixtures persists test data through any set of repositories
type Fixtures struct {
	Store *MemoryStore
}

// NewFixtures creates fixtures over a fresh in-memory store
func NewFixtures() *Fixtures {
	return &Fixtures{Store: NewMemoryStore()}
}

// Campaign stores a campaign with its steps
func (f *Fixtures) Campaign(tenantID string, specs ...models.StepSpec) *models.Campaign {
	campaign := NewCampaign(tenantID, specs...)
	if err := f.Store.Campaigns().Save(context.Background(), campaign); err != nil {
		panic(err)
	}
	return campaign
}

// Lead stores a lead of campaign; mutate adjusts it before insert
func (f *Fixtures) Lead(campaign *models.Campaign, mutate ...func(*models.CampaignLead)) *models.CampaignLead {
	lead := NewLead(campaign)
	for _, m := range mutate {
		m(lead)
	}
	if err := f.Store.Leads().Save(context.Background(), lead); err != nil {
		panic(err)
	}
	return lead
}

// Account stores an active provider account
func (f *Fixtures) Account(tenantID, externalID string) *models.ProviderAccount {
	account := NewProviderAccount(tenantID, externalID)
	if err := f.Store.Accounts().Save(context.Background(), account); err != nil {
		panic(err)
	}
	return account
}

// Wallet stores a credit wallet
func (f *Fixtures) Wallet(tenantID string, balance int64) *models.CreditWallet {
	wallet := NewWallet(tenantID, balance)
	if err := f.Store.Wallets().Save(context.Background(), wallet); err != nil {
		panic(err)
	}
	return wallet
}

// Reload returns the stored version of a campaign
func (f *Fixtures) Reload(campaign *models.Campaign) *models.Campaign {
	c, err := f.Store.Campaigns().ByID(context.Background(), campaign.ID)
	if err != nil {
		panic(err)
	}
	return c
}

// ReloadLead returns the stored version of a lead
func (f *Fixtures) ReloadLead(lead *models.CampaignLead) *models.CampaignLead {
	l, err := f.Store.Leads().ByID(context.Background(), lead.ID)
	if err != nil {
		panic(err)
	}
	return l
}
