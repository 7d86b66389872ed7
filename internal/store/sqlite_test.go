package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsplit/mailsplit/internal/store"
	"github.com/mailsplit/mailsplit/internal/testutil"
)

func TestCreateTest_Roundtrip(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	cfg := store.TestConfig{
		Name:              "spring sale",
		WinnerCriteria:    store.CriteriaClickRate,
		ConfidenceLevel:   0.95,
		TestDurationHours: 24,
	}

	variants := []store.VariantConfig{
		{
			Name: "A",
			Content: store.Content{
				Subject:      "Sale starts now",
				Preheader:    "Up to 50% off",
				Body:         "<p>Shop the sale</p>",
				TemplateData: map[string]string{"cta": "Shop now"},
			},
			TrafficShare: 0.3,
		},
		{Name: "B", Content: store.Content{Subject: "Big sale today"}, TrafficShare: 0.7},
	}

	created, err := s.CreateTest(ctx, "camp-1", cfg, variants)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEmpty(t, created[0].ID)
	assert.NotEqual(t, created[0].ID, created[1].ID)

	test, err := s.GetTest(ctx, "camp-1")
	require.NoError(t, err)

	assert.Equal(t, "spring sale", test.Config.Name)
	assert.Equal(t, store.CriteriaClickRate, test.Config.WinnerCriteria)
	assert.Equal(t, 0.95, test.Config.ConfidenceLevel)
	assert.Equal(t, 24, test.Config.TestDurationHours)
	// Unset minimum defaults at creation time.
	assert.Equal(t, store.DefaultMinimumSampleSize, test.Config.MinimumSampleSize)
	assert.True(t, test.IsABTest)
	assert.Nil(t, test.SentAt)

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, "Up to 50% off", got[0].Content.Preheader)
	assert.Equal(t, map[string]string{"cta": "Shop now"}, got[0].Content.TemplateData)
	assert.Equal(t, 0.3, got[0].TrafficShare)
	assert.Zero(t, got[0].Counters.TotalSent)
	assert.False(t, got[0].IsWinner)
}

func TestCreateTest_RejectsBadShares(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	variants := testutil.TwoVariants()
	variants[1].TrafficShare = 0.3

	_, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), variants)
	assert.ErrorIs(t, err, store.ErrInvalidConfiguration)

	// The failed creation must not leave a half-written test behind.
	_, err = s.GetTest(ctx, "camp-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateTest_RejectsSingleVariant(t *testing.T) {
	s := testutil.SetupTestStore(t)

	variants := []store.VariantConfig{{Name: "only", TrafficShare: 1.0}}
	_, err := s.CreateTest(context.Background(), "camp-1", testutil.OpenRateConfig(), variants)
	assert.ErrorIs(t, err, store.ErrInvalidConfiguration)
}

func TestGetTest_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetTest(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIncrementCounters_Accumulates(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	id := created[0].ID
	require.NoError(t, s.IncrementCounters(ctx, id, store.Counters{TotalSent: 100, TotalOpened: 40}))
	require.NoError(t, s.IncrementCounters(ctx, id, store.Counters{TotalSent: 50, TotalOpened: 10, TotalClicked: 5}))

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)

	assert.Equal(t, int64(150), got[0].Counters.TotalSent)
	assert.Equal(t, int64(50), got[0].Counters.TotalOpened)
	assert.Equal(t, int64(5), got[0].Counters.TotalClicked)
	assert.Zero(t, got[1].Counters.TotalSent)
}

func TestIncrementCounters_StampsSentAt(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	// Opens alone never start the clock.
	require.NoError(t, s.IncrementCounters(ctx, created[0].ID, store.Counters{TotalOpened: 1}))
	test, err := s.GetTest(ctx, "camp-1")
	require.NoError(t, err)
	assert.Nil(t, test.SentAt)

	require.NoError(t, s.IncrementCounters(ctx, created[0].ID, store.Counters{TotalSent: 1}))
	test, err = s.GetTest(ctx, "camp-1")
	require.NoError(t, err)
	require.NotNil(t, test.SentAt)

	// Later sends keep the original stamp.
	first := *test.SentAt
	require.NoError(t, s.IncrementCounters(ctx, created[1].ID, store.Counters{TotalSent: 1}))
	test, err = s.GetTest(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, first, *test.SentAt)
}

func TestIncrementCounters_Concurrent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)
	id := created[0].ID

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := s.IncrementCounters(ctx, id, store.Counters{TotalSent: 1}); err != nil {
					t.Errorf("increment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), got[0].Counters.TotalSent)
}

func TestIncrementCounters_UnknownVariant(t *testing.T) {
	s := testutil.SetupTestStore(t)

	err := s.IncrementCounters(context.Background(), "missing", store.Counters{TotalSent: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordEvent_JournalAndCounters(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)
	id := created[0].ID

	require.NoError(t, s.RecordEvent(ctx, id, store.EventSent))
	require.NoError(t, s.RecordEvent(ctx, id, store.EventOpened))
	require.NoError(t, s.RecordEvent(ctx, id, store.EventBounced))

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0].Counters.TotalSent)
	assert.Equal(t, int64(1), got[0].Counters.TotalOpened)
	assert.Equal(t, int64(1), got[0].Counters.TotalBounced)

	events, err := s.GetEvents(ctx, "camp-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, id, e.VariantID)
		assert.Equal(t, "camp-1", e.TestID)
	}
}

func TestRecordEvent_UnknownKind(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	err = s.RecordEvent(ctx, created[0].ID, "viewed")
	assert.ErrorIs(t, err, store.ErrInvalidConfiguration)
}

func TestMarkWinner_AtMostOne(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	marked, err := s.MarkWinner(ctx, "camp-1", created[0].ID)
	require.NoError(t, err)
	assert.True(t, marked)

	// Second attempt, even for the other variant, must be refused.
	marked, err = s.MarkWinner(ctx, "camp-1", created[1].ID)
	require.NoError(t, err)
	assert.False(t, marked)

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, got[0].IsWinner)
	assert.False(t, got[1].IsWinner)
}

func TestMarkWinner_UnknownVariant(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	_, err = s.MarkWinner(ctx, "camp-1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkWinner_ConcurrentRace(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	// Racing callers try to crown different variants.
	const callers = 8
	results := make([]bool, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			marked, err := s.MarkWinner(ctx, "camp-1", created[i%2].ID)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = marked
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, marked := range results {
		if marked {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller may crown a winner")

	got, err := s.GetVariants(ctx, "camp-1")
	require.NoError(t, err)
	total := 0
	for _, v := range got {
		if v.IsWinner {
			total++
		}
	}
	assert.Equal(t, 1, total)
}

func TestUpdateCampaignContent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	content := store.Content{
		Subject:      "Sale starts now",
		Preheader:    "Up to 50% off",
		Body:         "<p>Shop</p>",
		TemplateData: map[string]string{"cta": "Shop now"},
	}
	require.NoError(t, s.UpdateCampaignContent(ctx, "camp-1", content))

	test, err := s.GetTest(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, content, test.Content)

	err = s.UpdateCampaignContent(ctx, "missing", content)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTests(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "camp-1", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)
	_, err = s.CreateTest(ctx, "camp-2", testutil.OpenRateConfig(), testutil.TwoVariants())
	require.NoError(t, err)

	tests, err := s.ListTests(ctx)
	require.NoError(t, err)
	assert.Len(t, tests, 2)
}
