// Package sched runs periodic test evaluations for deployments that
// have no external trigger. The engine itself stays request/response;
// this is just a built-in caller.
package sched

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

type Evaluator struct {
	engine      *abtest.Engine
	store       store.Store
	cron        *cron.Cron
	logger      *slog.Logger
	autoRollout bool
}

// NewEvaluator schedules an evaluation sweep on the given cron spec.
// With autoRollout, tests that reach a significant winner get their
// content republished in the same sweep.
func NewEvaluator(engine *abtest.Engine, s store.Store, spec string, autoRollout bool, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ev := &Evaluator{
		engine:      engine,
		store:       s,
		cron:        cron.New(),
		logger:      logger,
		autoRollout: autoRollout,
	}

	if _, err := ev.cron.AddFunc(spec, ev.sweep); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	return ev, nil
}

func (ev *Evaluator) Start() {
	ev.cron.Start()
	ev.logger.Info("evaluator started", "auto_rollout", ev.autoRollout)
}

func (ev *Evaluator) Stop() {
	<-ev.cron.Stop().Done()
}

func (ev *Evaluator) sweep() {
	ctx := context.Background()

	tests, err := ev.store.ListTests(ctx)
	if err != nil {
		ev.logger.Error("evaluator sweep failed to list tests", "error", err)
		return
	}

	for _, t := range tests {
		if !t.IsABTest {
			continue
		}

		res, err := ev.engine.Results(ctx, t.ID)
		if err != nil {
			ev.logger.Error("evaluation failed", "test_id", t.ID, "error", err)
			continue
		}

		if !res.HasWinner {
			continue
		}

		if ev.autoRollout {
			outcome, err := ev.engine.DeclareWinnerAndSend(ctx, t.ID)
			if err != nil {
				ev.logger.Error("auto rollout failed", "test_id", t.ID, "error", err)
				continue
			}
			ev.logger.Info("auto rollout", "test_id", t.ID, "winner_id", outcome.WinnerID)
		} else {
			ev.logger.Info("winner ready for rollout", "test_id", t.ID, "winner_id", res.Winner.VariantID)
		}
	}
}
