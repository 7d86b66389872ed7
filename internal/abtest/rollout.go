package abtest

import (
	"context"
	"fmt"
)

// RolloutOutcome reports what DeclareWinnerAndSend did. The absence of
// a winner is a normal outcome, not an error.
type RolloutOutcome struct {
	Success  bool
	WinnerID string
	Message  string
}

// DeclareWinnerAndSend evaluates the test and, when a significant
// winner exists, republishes the winning variant's content as the
// campaign's primary content so the remaining, unsent audience receives
// the winning creative. Safe to call repeatedly: after the first
// success the stored winner is simply re-applied.
func (e *Engine) DeclareWinnerAndSend(ctx context.Context, testID string) (*RolloutOutcome, error) {
	res, err := e.Results(ctx, testID)
	if err != nil {
		return nil, err
	}

	if !res.HasWinner || res.Winner == nil {
		return &RolloutOutcome{
			Success: false,
			Message: "no significant winner to declare",
		}, nil
	}

	variants, err := e.store.GetVariants(ctx, testID)
	if err != nil {
		return nil, err
	}

	for _, v := range variants {
		if v.ID != res.Winner.VariantID {
			continue
		}
		if err := e.store.UpdateCampaignContent(ctx, testID, v.Content); err != nil {
			return nil, fmt.Errorf("failed to roll out winner content: %w", err)
		}
		e.logger.Info("winner rolled out",
			"test_id", testID,
			"variant_id", v.ID,
			"variant", v.Name)
		return &RolloutOutcome{
			Success:  true,
			WinnerID: v.ID,
			Message:  fmt.Sprintf("variant %q rolled out to remaining audience", v.Name),
		}, nil
	}

	return nil, fmt.Errorf("winner variant %s not found in test %s", res.Winner.VariantID, testID)
}
