package cycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Controller drives a Processor over an entity list.
type Controller struct {
	processor Processor
	gate      *Gate
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time
}

// NewController builds a controller. gate may be nil. Entity pacing comes from
// engine.entities_per_minute; zero disables it.
func NewController(p Processor, gate *Gate, cfg *config.Config, logger *zap.Logger) *Controller {
	c := &Controller{
		processor: p,
		gate:      gate,
		logger:    logger.Named("cycle"),
		now:       time.Now,
	}
	if epm := cfg.Engine.EntitiesPerMinute; epm > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(epm/60), 1)
	}
	return c
}

// Run processes entities strictly in order, then gives every entity that
// failed exactly one more try, again in order. Requeue results are final.
// A non-nil error means ctx ended the cycle early; the summary still covers
// everything processed up to that point.
func (c *Controller) Run(ctx context.Context, label string, entities []Entity) (Summary, error) {
	sum := Summary{ID: uuid.NewString(), Label: label, StartedAt: c.now()}
	log := c.logger.With(zap.String("cycle_id", sum.ID), zap.String("cycle", label))

	if len(entities) == 0 {
		log.Warn("Nothing to process in this cycle.")
		sum.FinishedAt = c.now()
		return sum, nil
	}
	log.Info("Cycle started.", zap.Int("entities", len(entities)))

	final := make(map[string]int, len(entities))
	var queue []Entity
	queued := make(map[string]bool)

	for i, e := range entities {
		o, err := c.step(ctx, log, e, i+1, len(entities), false)
		if err != nil {
			return c.interrupted(sum, entities, final), err
		}
		if _, seen := final[e.Key()]; !seen {
			final[e.Key()] = len(sum.Outcomes)
			sum.Outcomes = append(sum.Outcomes, o)
		} else {
			sum.Outcomes[final[e.Key()]] = o
		}
		if o.Kind == Failed && !queued[e.Key()] {
			queued[e.Key()] = true
			queue = append(queue, e)
		}
	}

	if len(queue) > 0 {
		log.Info("Requeue pass started.", zap.Int("entities", len(queue)))
	}
	for i, e := range queue {
		o, err := c.step(ctx, log, e, i+1, len(queue), true)
		if err != nil {
			return c.interrupted(sum, entities, final), err
		}
		sum.Requeued++
		if o.Kind != Failed {
			sum.Recovered++
		}
		sum.Outcomes[final[e.Key()]] = o
	}

	for _, o := range sum.Outcomes {
		sum.count(o)
	}
	sum.FinishedAt = c.now()
	log.Info("Cycle finished.",
		zap.Int("applied", sum.Applied),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("recovered", sum.Recovered),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)))
	return sum, nil
}

// step runs the pause checkpoint, pacing and one entity. It only returns an
// error when ctx ended, before or during the entity.
func (c *Controller) step(ctx context.Context, log *zap.Logger, e Entity, pos, total int, requeue bool) (Outcome, error) {
	entityLog := log.With(zap.Stringer("entity", e), zap.Int("position", pos), zap.Int("of", total), zap.Bool("requeue", requeue))

	err := c.gate.Checkpoint(ctx, func() {
		entityLog.Info("Paused before entity; waiting for the operator to resume.")
	})
	if err != nil {
		return Outcome{}, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{}, err
		}
	}

	o := c.processor.Process(ctx, e)
	o.Entity = e
	o.Requeued = requeue

	if o.Kind == Failed && o.Classification() == interaction.KindCanceled && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	logOutcome(entityLog, o)
	return o, nil
}

// interrupted closes out a cycle that ctx cut short, counting what finished.
func (c *Controller) interrupted(sum Summary, entities []Entity, final map[string]int) Summary {
	for _, o := range sum.Outcomes {
		sum.count(o)
	}
	sum.Interrupted = true
	sum.FinishedAt = c.now()
	c.logger.Warn("Cycle interrupted.",
		zap.String("cycle_id", sum.ID),
		zap.Int("finished", len(final)),
		zap.Int("entities", len(entities)))
	return sum
}

func logOutcome(log *zap.Logger, o Outcome) {
	fields := []zap.Field{zap.Stringer("outcome", o.Kind)}
	if len(o.Changed) > 0 {
		fields = append(fields, zap.Strings("changed", o.Changed))
	}
	if len(o.Warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", o.Warnings))
	}
	if o.Kind == Failed {
		fields = append(fields, zap.Stringer("classification", o.Classification()), zap.Error(o.Err))
		log.Warn("Entity failed.", fields...)
		return
	}
	log.Info("Entity done.", fields...)
}
