package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// MemoryStore keeps every table in memory. Reads return copies so callers see
// the same isolation they get from the database.
type MemoryStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	nextID uint

	campaigns map[uint]*models.Campaign
	steps     map[uint]*models.CampaignStep
	leads     map[uint]*models.CampaignLead
	actions   []*models.ActionRecord
	accounts  map[uint]*models.ProviderAccount
	wallets   map[uint]*models.CreditWallet
	creditTxs []*models.CreditTransaction

	// FailQuotaUpdates makes UpdateQuotaState return this error when set
	FailQuotaUpdates error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[uint]*models.Campaign),
		steps:     make(map[uint]*models.CampaignStep),
		leads:     make(map[uint]*models.CampaignLead),
		accounts:  make(map[uint]*models.ProviderAccount),
		wallets:   make(map[uint]*models.CreditWallet),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) Campaigns() repository.CampaignRepository { return &memCampaignRepo{s} }

func (s *MemoryStore) Steps() repository.CampaignStepRepository { return &memStepRepo{s} }

func (s *MemoryStore) Leads() repository.CampaignLeadRepository { return &memLeadRepo{s} }

func (s *MemoryStore) Actions() repository.ActionRecordRepository { return &memActionRepo{s} }

func (s *MemoryStore) Accounts() repository.ProviderAccountRepository { return &memAccountRepo{s} }

func (s *MemoryStore) Wallets() repository.CreditWalletRepository { return &memWalletRepo{s} }

func (s *MemoryStore) CreditTransactions() repository.CreditTransactionRepository {
	return &memCreditTxRepo{s}
}

// TxManager serialises units of work, which stands in for row locks
func (s *MemoryStore) TxManager() repository.TxManager { return &memTxManager{s} }

// ActionRecords returns a snapshot of the ledger in insertion order
func (s *MemoryStore) ActionRecords() []models.ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActionRecord, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, *a)
	}
	return out
}

// CreditMovements returns a snapshot of credit transactions in insertion order
func (s *MemoryStore) CreditMovements() []models.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CreditTransaction, 0, len(s.creditTxs))
	for _, t := range s.creditTxs {
		out = append(out, *t)
	}
	return out
}

func page[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return []*T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type memTxKey struct{}

type memTxManager struct{ s *MemoryStore }

func (m *memTxManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

// campaigns

type memCampaignRepo struct{ s *MemoryStore }

func (r *memCampaignRepo) copyOf(c *models.Campaign) *models.Campaign {
	out := *c
	out.Steps = make([]models.CampaignStep, 0)
	for _, st := range r.s.steps {
		if st.CampaignID == c.ID {
			out.Steps = append(out.Steps, *st)
		}
	}
	sort.Slice(out.Steps, func(i, j int) bool { return out.Steps[i].StepOrder < out.Steps[j].StepOrder })
	return &out
}

func (r *memCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, nil
	}
	return r.copyOf(c), nil
}

func (r *memCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}
	list, err := r.ByFilter(ctx, models.CampaignFilter{UUID: &parsed}, "", 1, 0)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *memCampaignRepo) match(c *models.Campaign, f models.CampaignFilter) bool {
	switch {
	case f.ID != nil && c.ID != *f.ID:
		return false
	case f.UUID != nil && c.UUID != *f.UUID:
		return false
	case f.TenantID != nil && c.TenantID != *f.TenantID:
		return false
	case f.Status != nil && c.Status != *f.Status:
		return false
	case f.ExecutionState != nil && c.ExecutionState != *f.ExecutionState:
		return false
	case f.CreatedAfter != nil && c.CreatedAt.Before(*f.CreatedAfter):
		return false
	case f.CreatedBefore != nil && c.CreatedAt.After(*f.CreatedBefore):
		return false
	}
	return true
}

func (r *memCampaignRepo) sorted(keep func(*models.Campaign) bool) []*models.Campaign {
	out := make([]*models.Campaign, 0)
	for _, c := range r.s.campaigns {
		if keep(c) {
			out = append(out, r.copyOf(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.sorted(func(c *models.Campaign) bool { return r.match(c, filter) }), limit, offset), nil
}

func (r *memCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// Save stores the campaign and any steps attached to it
func (r *memCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := c.BeforeCreate(nil); err != nil {
		return err
	}
	c.ID = r.s.id()
	stored := *c
	stored.Steps = nil
	r.s.campaigns[c.ID] = &stored
	for i := range c.Steps {
		st := &c.Steps[i]
		st.CampaignID = c.ID
		st.ID = r.s.id()
		if err := st.BeforeCreate(nil); err != nil {
			return err
		}
		cp := *st
		r.s.steps[st.ID] = &cp
	}
	return nil
}

func (r *memCampaignRepo) SaveBatch(ctx context.Context, list []*models.Campaign) error {
	for _, c := range list {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *memCampaignRepo) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.sorted(func(c *models.Campaign) bool { return c.IsRunnable(now) }), limit, 0), nil
}

func (r *memCampaignRepo) update(id uint, fn func(c *models.Campaign)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil
	}
	fn(c)
	c.UpdatedAt = utils.UTCNowPtr()
	return nil
}

func (r *memCampaignRepo) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	return r.update(id, func(c *models.Campaign) { c.Status = status })
}

func (r *memCampaignRepo) UpdateExecutionState(ctx context.Context, id uint, state models.ExecutionState, nextRunAt *time.Time) error {
	return r.update(id, func(c *models.Campaign) {
		c.ExecutionState = state
		c.NextRunAt = nextRunAt
	})
}

func (r *memCampaignRepo) UpdateQuotaState(ctx context.Context, id uint, expectedVersion int, quota models.QuotaState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailQuotaUpdates != nil {
		return r.s.FailQuotaUpdates
	}
	c, ok := r.s.campaigns[id]
	if !ok || c.QuotaVersion != expectedVersion {
		return repository.ErrQuotaConflict
	}
	c.Config.Quota = quota
	c.QuotaVersion++
	return nil
}

func (r *memCampaignRepo) UpdateStats(ctx context.Context, id uint, stats models.CampaignStats) error {
	return r.update(id, func(c *models.Campaign) { c.Stats = stats })
}

// steps

type memStepRepo struct{ s *MemoryStore }

func (r *memStepRepo) ByID(ctx context.Context, id uint) (*models.CampaignStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.steps[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *memStepRepo) ByFilter(ctx context.Context, filter models.CampaignStepFilter, orderBy string, limit, offset int) ([]*models.CampaignStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.CampaignStep, 0)
	for _, st := range r.s.steps {
		if filter.ID != nil && st.ID != *filter.ID {
			continue
		}
		if filter.CampaignID != nil && st.CampaignID != *filter.CampaignID {
			continue
		}
		if filter.Type != nil && st.Type != *filter.Type {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return out[i].StepOrder < out[j].StepOrder
	})
	return page(out, limit, offset), nil
}

func (r *memStepRepo) ListByCampaign(ctx context.Context, campaignID uint) ([]*models.CampaignStep, error) {
	return r.ByFilter(ctx, models.CampaignStepFilter{CampaignID: &campaignID}, "step_order ASC", 0, 0)
}

func (r *memStepRepo) Save(ctx context.Context, st *models.CampaignStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.steps {
		if other.CampaignID == st.CampaignID && other.StepOrder == st.StepOrder {
			return fmt.Errorf("failed to save entity: duplicate step order %d", st.StepOrder)
		}
	}
	if err := st.BeforeCreate(nil); err != nil {
		return err
	}
	st.ID = r.s.id()
	cp := *st
	r.s.steps[st.ID] = &cp
	return nil
}

func (r *memStepRepo) SaveBatch(ctx context.Context, list []*models.CampaignStep) error {
	for _, st := range list {
		if err := r.Save(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *memStepRepo) Count(ctx context.Context, filter models.CampaignStepFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memStepRepo) Exists(ctx context.Context, filter models.CampaignStepFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// leads

type memLeadRepo struct{ s *MemoryStore }

func (r *memLeadRepo) ByID(ctx context.Context, id uint) (*models.CampaignLead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memLeadRepo) match(l *models.CampaignLead, f models.CampaignLeadFilter) bool {
	switch {
	case f.ID != nil && l.ID != *f.ID:
		return false
	case f.TenantID != nil && l.TenantID != *f.TenantID:
		return false
	case f.CampaignID != nil && l.CampaignID != *f.CampaignID:
		return false
	case f.SourcePersonID != nil && l.SourcePersonID != *f.SourcePersonID:
		return false
	case f.Status != nil && l.Status != *f.Status:
		return false
	case f.Email != nil && !strings.EqualFold(l.Email, *f.Email):
		return false
	case f.DueBefore != nil && l.NextActionAt != nil && l.NextActionAt.After(*f.DueBefore):
		return false
	}
	return true
}

func (r *memLeadRepo) filter(keep func(*models.CampaignLead) bool) []*models.CampaignLead {
	out := make([]*models.CampaignLead, 0)
	for _, l := range r.s.leads {
		if keep(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memLeadRepo) ByFilter(ctx context.Context, filter models.CampaignLeadFilter, orderBy string, limit, offset int) ([]*models.CampaignLead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return page(r.filter(func(l *models.CampaignLead) bool { return r.match(l, filter) }), limit, offset), nil
}

func (r *memLeadRepo) Count(ctx context.Context, filter models.CampaignLeadFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memLeadRepo) Exists(ctx context.Context, filter models.CampaignLeadFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *memLeadRepo) Save(ctx context.Context, l *models.CampaignLead) error {
	ok, err := r.InsertIfAbsent(ctx, l)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to save entity: lead %s already enrolled", l.SourcePersonID)
	}
	return nil
}

func (r *memLeadRepo) SaveBatch(ctx context.Context, list []*models.CampaignLead) error {
	for _, l := range list {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *memLeadRepo) InsertIfAbsent(ctx context.Context, l *models.CampaignLead) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.leads {
		if other.CampaignID == l.CampaignID && other.SourcePersonID == l.SourcePersonID {
			return false, nil
		}
	}
	if err := l.BeforeCreate(nil); err != nil {
		return false, err
	}
	l.ID = r.s.id()
	cp := *l
	r.s.leads[l.ID] = &cp
	return true, nil
}

func (r *memLeadRepo) ExistsByPerson(ctx context.Context, campaignID uint, sourcePersonID string) (bool, error) {
	return r.Exists(ctx, models.CampaignLeadFilter{CampaignID: &campaignID, SourcePersonID: &sourcePersonID})
}

func (r *memLeadRepo) ListDue(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.CampaignLead, error) {
	status := models.LeadStatusActive
	return r.ByFilter(ctx, models.CampaignLeadFilter{CampaignID: &campaignID, Status: &status, DueBefore: &now}, "id ASC", limit, 0)
}

func latestEnriched(list []*models.CampaignLead) *models.CampaignLead {
	var best *models.CampaignLead
	for _, l := range list {
		if best == nil || l.EnrichedAt.After(*best.EnrichedAt) {
			best = l
		}
	}
	return best
}

func (r *memLeadRepo) FindEnrichedByPerson(ctx context.Context, tenantID, sourcePersonID string, excludeID uint) (*models.CampaignLead, error) {
	if sourcePersonID == "" {
		return nil, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return latestEnriched(r.filter(func(l *models.CampaignLead) bool {
		return l.TenantID == tenantID && l.SourcePersonID == sourcePersonID && l.ID != excludeID && l.EnrichedAt != nil
	})), nil
}

func (r *memLeadRepo) FindEnrichedByIdentity(ctx context.Context, tenantID, email, firstName, company string, excludeID uint) (*models.CampaignLead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	base := func(l *models.CampaignLead) bool {
		return l.TenantID == tenantID && l.ID != excludeID && l.EnrichedAt != nil && l.EnrichedLinkedInURL != nil
	}

	if email = strings.TrimSpace(email); email != "" {
		found := latestEnriched(r.filter(func(l *models.CampaignLead) bool {
			return base(l) && (strings.EqualFold(l.Email, email) || strings.EqualFold(utils.Deref(l.EnrichedEmail), email))
		}))
		if found != nil {
			return found, nil
		}
	}

	firstName, company = strings.TrimSpace(firstName), strings.TrimSpace(company)
	if firstName == "" || company == "" {
		return nil, nil
	}
	return latestEnriched(r.filter(func(l *models.CampaignLead) bool {
		return base(l) && strings.EqualFold(l.FirstName, firstName) && strings.EqualFold(l.Company, company)
	})), nil
}

func (r *memLeadRepo) update(id uint, fn func(l *models.CampaignLead)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil
	}
	fn(l)
	l.UpdatedAt = utils.UTCNowPtr()
	return nil
}

func (r *memLeadRepo) UpdateEnrichment(ctx context.Context, id uint, e models.LeadEnrichment, enrichedAt time.Time) error {
	return r.update(id, func(l *models.CampaignLead) {
		l.EnrichedAt = &enrichedAt
		if e.Email != nil {
			l.EnrichedEmail = utils.ToPtr(*e.Email)
		}
		if e.LinkedInURL != nil {
			l.EnrichedLinkedInURL = utils.ToPtr(*e.LinkedInURL)
		}
		if e.Phone != nil {
			l.EnrichedPhone = utils.ToPtr(*e.Phone)
		}
		if e.FirstName != nil {
			l.FirstName = *e.FirstName
		}
		if e.LastName != nil {
			l.LastName = *e.LastName
		}
	})
}

func (r *memLeadRepo) UpdateProgress(ctx context.Context, id uint, status models.LeadStatus, stepOrder int, nextActionAt *time.Time, lastError *string) error {
	return r.update(id, func(l *models.CampaignLead) {
		l.Status = status
		l.CurrentStepOrder = stepOrder
		l.NextActionAt = nextActionAt
		l.LastError = lastError
	})
}

func (r *memLeadRepo) CountByStatus(ctx context.Context, campaignID uint) (map[models.LeadStatus]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[models.LeadStatus]int64)
	for _, l := range r.s.leads {
		if l.CampaignID == campaignID {
			out[l.Status]++
		}
	}
	return out, nil
}

func (r *memLeadRepo) EarliestNextAction(ctx context.Context, campaignID uint) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var earliest *time.Time
	for _, l := range r.s.leads {
		if l.CampaignID != campaignID || l.Status != models.LeadStatusActive || l.NextActionAt == nil {
			continue
		}
		if earliest == nil || l.NextActionAt.Before(*earliest) {
			t := *l.NextActionAt
			earliest = &t
		}
	}
	return earliest, nil
}

func (r *memLeadRepo) StopActive(ctx context.Context, campaignID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, l := range r.s.leads {
		if l.CampaignID == campaignID && l.Status == models.LeadStatusActive {
			l.Status = models.LeadStatusStopped
			n++
		}
	}
	return n, nil
}

// action ledger

type memActionRepo struct{ s *MemoryStore }

func (r *memActionRepo) match(a *models.ActionRecord, f models.ActionRecordFilter) bool {
	switch {
	case f.TenantID != nil && a.TenantID != *f.TenantID:
		return false
	case f.CampaignID != nil && a.CampaignID != *f.CampaignID:
		return false
	case f.LeadID != nil && a.LeadID != *f.LeadID:
		return false
	case f.StepID != nil && (a.StepID == nil || *a.StepID != *f.StepID):
		return false
	case f.ActionType != nil && a.ActionType != *f.ActionType:
		return false
	case f.Status != nil && a.Status != *f.Status:
		return false
	case f.NormalizedProfileURL != nil && a.NormalizedProfileURL != *f.NormalizedProfileURL:
		return false
	case f.WithMessage != nil && a.WithMessage != *f.WithMessage:
		return false
	case f.CreatedAfter != nil && a.CreatedAt.Before(*f.CreatedAfter):
		return false
	case f.CreatedBefore != nil && a.CreatedAt.After(*f.CreatedBefore):
		return false
	}
	return true
}

func (r *memActionRepo) ByID(ctx context.Context, id uint) (*models.ActionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.actions {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memActionRepo) ByFilter(ctx context.Context, filter models.ActionRecordFilter, orderBy string, limit, offset int) ([]*models.ActionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.ActionRecord, 0)
	for _, a := range r.s.actions {
		if r.match(a, filter) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (r *memActionRepo) Count(ctx context.Context, filter models.ActionRecordFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memActionRepo) Exists(ctx context.Context, filter models.ActionRecordFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *memActionRepo) insert(a *models.ActionRecord) error {
	if err := a.BeforeCreate(nil); err != nil {
		return err
	}
	a.ID = r.s.id()
	cp := *a
	r.s.actions = append(r.s.actions, &cp)
	return nil
}

func (r *memActionRepo) Save(ctx context.Context, a *models.ActionRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insert(a)
}

func (r *memActionRepo) SaveBatch(ctx context.Context, list []*models.ActionRecord) error {
	for _, a := range list {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *memActionRepo) SaveOnce(ctx context.Context, a *models.ActionRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.actions {
		if other.CampaignID == a.CampaignID && other.LeadID == a.LeadID && other.ActionType == a.ActionType {
			return false, nil
		}
	}
	return true, r.insert(a)
}

func (r *memActionRepo) Latest(ctx context.Context, filter models.ActionRecordFilter) (*models.ActionRecord, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	latest := list[0]
	for _, a := range list[1:] {
		if !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	return latest, nil
}

func (r *memActionRepo) CountByTypeAndStatus(ctx context.Context, campaignID uint) (map[models.ActionType]map[models.ActionStatus]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[models.ActionType]map[models.ActionStatus]int64)
	for _, a := range r.s.actions {
		if a.CampaignID != campaignID {
			continue
		}
		if out[a.ActionType] == nil {
			out[a.ActionType] = make(map[models.ActionStatus]int64)
		}
		out[a.ActionType][a.Status]++
	}
	return out, nil
}

// provider accounts

type memAccountRepo struct{ s *MemoryStore }

func (r *memAccountRepo) ByID(ctx context.Context, id uint) (*models.ProviderAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) ByFilter(ctx context.Context, filter models.ProviderAccountFilter, orderBy string, limit, offset int) ([]*models.ProviderAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.ProviderAccount, 0)
	for _, a := range r.s.accounts {
		if filter.ID != nil && a.ID != *filter.ID {
			continue
		}
		if filter.TenantID != nil && a.TenantID != *filter.TenantID {
			continue
		}
		if filter.Provider != nil && a.Provider != *filter.Provider {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	// least recently used first, never used before anything else
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].LastUsedAt, out[j].LastUsedAt
		switch {
		case li == nil && lj != nil:
			return true
		case li != nil && lj == nil:
			return false
		case li != nil && lj != nil && !li.Equal(*lj):
			return li.Before(*lj)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

func (r *memAccountRepo) Count(ctx context.Context, filter models.ProviderAccountFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memAccountRepo) Exists(ctx context.Context, filter models.ProviderAccountFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *memAccountRepo) Save(ctx context.Context, a *models.ProviderAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := a.BeforeCreate(nil); err != nil {
		return err
	}
	a.ID = r.s.id()
	cp := *a
	r.s.accounts[a.ID] = &cp
	return nil
}

func (r *memAccountRepo) SaveBatch(ctx context.Context, list []*models.ProviderAccount) error {
	for _, a := range list {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *memAccountRepo) ListActiveByTenant(ctx context.Context, tenantID, provider string) ([]*models.ProviderAccount, error) {
	status := models.ProviderAccountStatusActive
	return r.ByFilter(ctx, models.ProviderAccountFilter{TenantID: &tenantID, Provider: &provider, Status: &status}, "", 0, 0)
}

func (r *memAccountRepo) ListTenantsWithActiveAccounts(ctx context.Context, provider string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, a := range r.s.accounts {
		if a.Provider == provider && a.IsActive() && !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memAccountRepo) UpdateStatus(ctx context.Context, id uint, status models.ProviderAccountStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.accounts[id]; ok {
		a.Status = status
	}
	return nil
}

func (r *memAccountRepo) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.accounts[id]; ok {
		a.LastUsedAt = &at
	}
	return nil
}

// credit wallets

type memWalletRepo struct{ s *MemoryStore }

func (r *memWalletRepo) ByID(ctx context.Context, id uint) (*models.CreditWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWalletRepo) ByFilter(ctx context.Context, filter models.CreditWalletFilter, orderBy string, limit, offset int) ([]*models.CreditWallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.CreditWallet, 0)
	for _, w := range r.s.wallets {
		if filter.ID != nil && w.ID != *filter.ID {
			continue
		}
		if filter.TenantID != nil && w.TenantID != *filter.TenantID {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

func (r *memWalletRepo) Count(ctx context.Context, filter models.CreditWalletFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memWalletRepo) Exists(ctx context.Context, filter models.CreditWalletFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *memWalletRepo) Save(ctx context.Context, w *models.CreditWallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := w.BeforeCreate(nil); err != nil {
		return err
	}
	w.ID = r.s.id()
	cp := *w
	r.s.wallets[w.ID] = &cp
	return nil
}

func (r *memWalletRepo) SaveBatch(ctx context.Context, list []*models.CreditWallet) error {
	for _, w := range list {
		if err := r.Save(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *memWalletRepo) ByTenantID(ctx context.Context, tenantID string) (*models.CreditWallet, error) {
	list, err := r.ByFilter(ctx, models.CreditWalletFilter{TenantID: &tenantID}, "", 1, 0)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *memWalletRepo) ByTenantIDForUpdate(ctx context.Context, tenantID string) (*models.CreditWallet, error) {
	return r.ByTenantID(ctx, tenantID)
}

func (r *memWalletRepo) UpdateBalance(ctx context.Context, id uint, balance int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.wallets[id]; ok {
		w.Balance = balance
		w.UpdatedAt = utils.UTCNow()
	}
	return nil
}

// credit transactions

type memCreditTxRepo struct{ s *MemoryStore }

func (r *memCreditTxRepo) ByID(ctx context.Context, id uint) (*models.CreditTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.creditTxs {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memCreditTxRepo) ByFilter(ctx context.Context, filter models.CreditTransactionFilter, orderBy string, limit, offset int) ([]*models.CreditTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.CreditTransaction, 0)
	for _, t := range r.s.creditTxs {
		switch {
		case filter.ID != nil && t.ID != *filter.ID:
			continue
		case filter.TenantID != nil && t.TenantID != *filter.TenantID:
			continue
		case filter.WalletID != nil && t.WalletID != *filter.WalletID:
			continue
		case filter.Type != nil && t.Type != *filter.Type:
			continue
		case filter.IdempotencyKey != nil && t.IdempotencyKey != *filter.IdempotencyKey:
			continue
		case filter.CreatedAfter != nil && t.CreatedAt.Before(*filter.CreatedAfter):
			continue
		case filter.CreatedBefore != nil && t.CreatedAt.After(*filter.CreatedBefore):
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return page(out, limit, offset), nil
}

func (r *memCreditTxRepo) Count(ctx context.Context, filter models.CreditTransactionFilter) (int64, error) {
	list, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), err
}

func (r *memCreditTxRepo) Exists(ctx context.Context, filter models.CreditTransactionFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *memCreditTxRepo) Save(ctx context.Context, t *models.CreditTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := t.BeforeCreate(nil); err != nil {
		return err
	}
	t.ID = r.s.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	cp := *t
	r.s.creditTxs = append(r.s.creditTxs, &cp)
	return nil
}

func (r *memCreditTxRepo) SaveBatch(ctx context.Context, list []*models.CreditTransaction) error {
	for _, t := range list {
		if err := r.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *memCreditTxRepo) ByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*models.CreditTransaction, error) {
	return r.ByFilter(ctx, models.CreditTransactionFilter{TenantID: &tenantID, IdempotencyKey: &key}, "id ASC", 0, 0)
}
