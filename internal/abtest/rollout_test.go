package abtest_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsplit/mailsplit/internal/store"
)

func TestDeclareWinnerAndSend_NoWinnerYet(t *testing.T) {
	e, s, vs := seedTest(t)

	feed(t, s, vs["A"].ID, store.Counters{TotalSent: 1000, TotalOpened: 420})
	feed(t, s, vs["B"].ID, store.Counters{TotalSent: 1000, TotalOpened: 380})

	outcome, err := e.DeclareWinnerAndSend(context.Background(), "camp-1")
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Empty(t, outcome.WinnerID)
	assert.Contains(t, outcome.Message, "no significant winner")

	// The campaign content must be untouched.
	test, err := s.GetTest(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Empty(t, test.Content.Subject)
}

func TestDeclareWinnerAndSend_RollsOutContent(t *testing.T) {
	e, s, vs := seedTest(t)

	feed(t, s, vs["A"].ID, store.Counters{TotalSent: 10000, TotalOpened: 4200})
	feed(t, s, vs["B"].ID, store.Counters{TotalSent: 10000, TotalOpened: 3800})

	outcome, err := e.DeclareWinnerAndSend(context.Background(), "camp-1")
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, vs["A"].ID, outcome.WinnerID)

	// The winner's creative is now the campaign's primary content.
	test, err := s.GetTest(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, vs["A"].Content.Subject, test.Content.Subject)
}

func TestDeclareWinnerAndSend_Idempotent(t *testing.T) {
	e, s, vs := seedTest(t)

	feed(t, s, vs["A"].ID, store.Counters{TotalSent: 10000, TotalOpened: 4200})
	feed(t, s, vs["B"].ID, store.Counters{TotalSent: 10000, TotalOpened: 3800})

	first, err := e.DeclareWinnerAndSend(context.Background(), "camp-1")
	require.NoError(t, err)
	require.True(t, first.Success)

	// A second call re-applies the same stored winner, even if the raw
	// numbers have since shifted.
	feed(t, s, vs["B"].ID, store.Counters{TotalSent: 10000, TotalOpened: 9500})

	second, err := e.DeclareWinnerAndSend(context.Background(), "camp-1")
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, first.WinnerID, second.WinnerID)
}

func TestDeclareWinnerAndSend_ConcurrentCallersAgree(t *testing.T) {
	e, s, vs := seedTest(t)

	feed(t, s, vs["A"].ID, store.Counters{TotalSent: 10000, TotalOpened: 4200})
	feed(t, s, vs["B"].ID, store.Counters{TotalSent: 10000, TotalOpened: 3800})

	const callers = 8
	winners := make([]string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := e.DeclareWinnerAndSend(context.Background(), "camp-1")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			winners[i] = outcome.WinnerID
		}(i)
	}
	wg.Wait()

	for i, w := range winners {
		assert.Equal(t, vs["A"].ID, w, "caller %d", i)
	}

	// Exactly one variant carries the winner mark.
	variants, err := s.GetVariants(context.Background(), "camp-1")
	require.NoError(t, err)
	marked := 0
	for _, v := range variants {
		if v.IsWinner {
			marked++
		}
	}
	assert.Equal(t, 1, marked)
}
