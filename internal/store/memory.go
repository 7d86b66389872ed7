package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used to unit-test the decision
// engine without touching SQLite. All mutations happen under one mutex,
// which gives the same atomic-increment and single-winner guarantees
// the SQLite schema enforces.
type MemoryStore struct {
	mu       sync.Mutex
	tests    map[string]*Test
	variants map[string]*Variant // by variant ID
	order    map[string][]string // testID -> variant IDs in creation order
	events   []*Event
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tests:    make(map[string]*Test),
		variants: make(map[string]*Variant),
		order:    make(map[string][]string),
		now:      time.Now,
	}
}

// SetClock overrides the store clock; tests use it to pin sent_at.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetABTest flips the is-a-test flag; tests use it to model campaigns
// that were never set up as A/B tests.
func (m *MemoryStore) SetABTest(testID string, isABTest bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tests[testID]; ok {
		t.IsABTest = isABTest
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateTest(ctx context.Context, testID string, cfg TestConfig, variants []VariantConfig) ([]*Variant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateVariantConfigs(variants); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.tests[testID] = &Test{
		ID:        testID,
		Config:    cfg,
		IsABTest:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created := make([]*Variant, 0, len(variants))
	for _, vc := range variants {
		v := &Variant{
			ID:           uuid.NewString(),
			TestID:       testID,
			Name:         vc.Name,
			Content:      vc.Content,
			TrafficShare: vc.TrafficShare,
		}
		m.variants[v.ID] = v
		m.order[testID] = append(m.order[testID], v.ID)
		created = append(created, copyVariant(v))
	}

	return created, nil
}

func (m *MemoryStore) GetTest(ctx context.Context, testID string) (*Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tests[testID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	if t.SentAt != nil {
		ts := *t.SentAt
		cp.SentAt = &ts
	}
	return &cp, nil
}

func (m *MemoryStore) ListTests(ctx context.Context) ([]*Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tests := make([]*Test, 0, len(m.tests))
	for _, t := range m.tests {
		cp := *t
		if t.SentAt != nil {
			ts := *t.SentAt
			cp.SentAt = &ts
		}
		tests = append(tests, &cp)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests, nil
}

func (m *MemoryStore) GetVariants(ctx context.Context, testID string) ([]*Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.order[testID]
	if !ok {
		return nil, ErrNotFound
	}
	variants := make([]*Variant, 0, len(ids))
	for _, id := range ids {
		variants = append(variants, copyVariant(m.variants[id]))
	}
	return variants, nil
}

func (m *MemoryStore) RecordEvent(ctx context.Context, variantID string, kind EventKind) error {
	delta, err := Delta(kind, 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.variants[variantID]
	if !ok {
		return ErrNotFound
	}

	m.nextID++
	m.events = append(m.events, &Event{
		ID:        m.nextID,
		TestID:    v.TestID,
		VariantID: variantID,
		Kind:      kind,
		CreatedAt: m.now(),
	})

	m.applyDeltaLocked(v, delta)
	return nil
}

func (m *MemoryStore) IncrementCounters(ctx context.Context, variantID string, delta Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.variants[variantID]
	if !ok {
		return ErrNotFound
	}
	m.applyDeltaLocked(v, delta)
	return nil
}

func (m *MemoryStore) applyDeltaLocked(v *Variant, delta Counters) {
	v.Counters.TotalSent += delta.TotalSent
	v.Counters.TotalDelivered += delta.TotalDelivered
	v.Counters.TotalOpened += delta.TotalOpened
	v.Counters.TotalClicked += delta.TotalClicked
	v.Counters.TotalUnsubscribed += delta.TotalUnsubscribed
	v.Counters.TotalBounced += delta.TotalBounced
	v.Counters.TotalComplained += delta.TotalComplained

	if delta.TotalSent > 0 {
		if t, ok := m.tests[v.TestID]; ok && t.SentAt == nil {
			ts := m.now()
			t.SentAt = &ts
		}
	}
}

func (m *MemoryStore) GetEvents(ctx context.Context, testID string) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].TestID == testID {
			cp := *m.events[i]
			events = append(events, &cp)
		}
	}
	return events, nil
}

func (m *MemoryStore) MarkWinner(ctx context.Context, testID, variantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.variants[variantID]
	if !ok || target.TestID != testID {
		return false, ErrNotFound
	}

	for _, id := range m.order[testID] {
		if m.variants[id].IsWinner {
			return false, nil
		}
	}

	target.IsWinner = true
	return true, nil
}

func (m *MemoryStore) UpdateCampaignContent(ctx context.Context, testID string, content Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tests[testID]
	if !ok {
		return ErrNotFound
	}
	t.Content = content
	t.UpdatedAt = m.now()
	return nil
}

func copyVariant(v *Variant) *Variant {
	cp := *v
	if v.Content.TemplateData != nil {
		cp.Content.TemplateData = make(map[string]string, len(v.Content.TemplateData))
		for k, val := range v.Content.TemplateData {
			cp.Content.TemplateData[k] = val
		}
	}
	return &cp
}
