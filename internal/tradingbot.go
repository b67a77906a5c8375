// Package internal wires the decision engine to its feed, paper broker, storage and outer surfaces.
package internal

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/engine"
	"github.com/vadiminshakov/fusiontrader/internal/events"
	"github.com/vadiminshakov/fusiontrader/internal/metrics"
	"github.com/vadiminshakov/fusiontrader/internal/scheduler"
	"github.com/vadiminshakov/fusiontrader/internal/services/exit"
	"github.com/vadiminshakov/fusiontrader/internal/services/marketdata"
	"github.com/vadiminshakov/fusiontrader/internal/services/risk"
	"github.com/vadiminshakov/fusiontrader/internal/services/trader"
	"github.com/vadiminshakov/fusiontrader/internal/storage/decisions"
	"github.com/vadiminshakov/fusiontrader/internal/storage/recorder"
	"github.com/vadiminshakov/fusiontrader/internal/web"
	"github.com/vadiminshakov/fusiontrader/pkg/indicators"
)

const eventBuffer = 256

// Option configures a TradingBot.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock overrides time.Now for the engine and the paper broker.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// TradingBot runs decision cycles over a market feed and executes them on the paper broker.
type TradingBot struct {
	Engine   *engine.Engine
	Broker   *trader.PaperTrader
	Trailing *exit.TrailingManager
	Journal  *decisions.WALStore
	Recorder recorder.Recorder
	Events   *events.Broadcaster
	Source   marketdata.Source

	logger  *zap.Logger
	clock   func() time.Time
	closers []closer
}

// NewTradingBot creates a bot. src may be nil when decisions are fed through Decide only.
func NewTradingBot(conf config.Config, src marketdata.Source, logger *zap.Logger, opts ...Option) (*TradingBot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	state := risk.NewState()
	broker, err := newPaperBroker(conf, logger, o.clock, func(symbol string, pnl float64, at time.Time) {
		if pnl < 0 {
			state.Losses.RegisterLoss(symbol, pnl, at)
		}
	})
	if err != nil {
		return nil, err
	}

	journal, err := newJournal(conf)
	if err != nil {
		return nil, err
	}
	rec, err := newRecorder(conf)
	if err != nil {
		_ = journal.Close()
		return nil, err
	}

	b := &TradingBot{
		Broker:   broker,
		Journal:  journal,
		Recorder: rec,
		Events:   events.NewBroadcaster(eventBuffer),
		Source:   src,
		logger:   logger,
		clock:    o.clock,
	}

	regimeSource, regimeModel := newRegimeSource(conf, logger)
	aiSource, metaModel := newAISource(conf, logger)
	for _, c := range []closer{regimeModel, metaModel} {
		if c != nil {
			b.closers = append(b.closers, c)
		}
	}

	b.Engine = engine.New(conf, engine.Deps{
		Accounts:  broker,
		Positions: broker,
		Executor:  broker,
		ATR:       indicators.NewATRTracker(conf.App.ATRPeriod),
		Regime:    regimeSource,
		AI:        aiSource,
		State:     state,
		Clock:     o.clock,
	}, logger.Named("engine"))

	b.Trailing = exit.NewTrailingManager(exit.New(conf, logger), broker, logger.Named("trailing"),
		exit.WithATR(b.Engine.LastATR),
		exit.WithCloseHook(b.onForcedClose),
	)

	return b, nil
}

// Close releases storage and models.
func (b *TradingBot) Close() error {
	for _, c := range b.closers {
		c.Close()
	}
	var errs []error
	if err := b.Recorder.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close recorder"))
	}
	if err := b.Journal.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close journal"))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Cycle fetches one batch from the source, decides on it and executes the result.
func (b *TradingBot) Cycle(ctx context.Context) ([]domain.FinalDecision, error) {
	if b.Source == nil {
		return nil, errors.New("no market source configured")
	}
	start := time.Now()
	defer func() { metrics.ObserveCycle(time.Since(start)) }()

	entries, err := b.Source.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch market feed")
	}

	out := b.Decide(ctx, entries)
	b.Execute(ctx, out)
	return out, nil
}

// Decide marks the broker to market, runs the engine and records every decision.
// It does not place orders.
func (b *TradingBot) Decide(ctx context.Context, entries []domain.MarketEntry) []domain.FinalDecision {
	for _, entry := range entries {
		for _, f := range b.Broker.UpdateQuote(entry) {
			b.publishFill(f)
		}
	}

	out := b.Engine.Run(ctx, entries)
	for _, d := range out {
		b.record(d)
	}

	metrics.SetKillSwitch(b.Engine.State().KillSwitch.Triggered())
	if acc, err := b.Broker.Account(ctx); err == nil {
		metrics.SetEquity(acc.Equity)
	}
	return out
}

// Execute places BUY/SELL decisions on the paper broker and flattens it on CLOSE_ALL.
func (b *TradingBot) Execute(ctx context.Context, out []domain.FinalDecision) {
	for _, d := range out {
		if d.Decision == domain.DecisionHold {
			continue
		}
		fills, err := b.Broker.Execute(ctx, d)
		if err != nil {
			b.logger.Error("failed to execute decision",
				zap.String("id", d.ID),
				zap.String("symbol", d.Symbol),
				zap.String("decision", string(d.Decision)),
				zap.Error(err))
			continue
		}
		for _, f := range fills {
			if !f.Closing {
				metrics.ObserveOrder(f.Symbol, f.Side)
			}
			b.publishFill(f)
		}
	}
}

// Trail runs one trailing cycle over configured symbols and symbols with open positions.
func (b *TradingBot) Trail(ctx context.Context) ([]exit.Report, error) {
	positions, err := b.Broker.OpenPositions(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "list open positions")
	}
	if len(positions) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	for _, name := range b.Engine.Config().SymbolNames() {
		seen[name] = struct{}{}
	}
	for _, p := range positions {
		seen[p.Symbol] = struct{}{}
	}
	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return b.Trailing.CycleAll(ctx, symbols), nil
}

// DailyReset zeroes daily loss and order counters and clears the correlation book.
// The kill-switch stays tripped until a restart.
func (b *TradingBot) DailyReset(_ context.Context) error {
	state := b.Engine.State()
	state.Losses.ResetDay()
	state.Correlation.Reset()
	b.logger.Info("daily risk counters reset")
	return nil
}

// ApplyOverride applies patch to the engine and the trailing manager and journals it.
func (b *TradingBot) ApplyOverride(_ context.Context, patch config.Patch) (domain.OverrideEvent, error) {
	if err := b.Engine.ApplyOverride(patch); err != nil {
		return domain.OverrideEvent{}, err
	}
	b.Trailing.SetConfig(b.Engine.Config())

	event := domain.OverrideEvent{ID: uuid.NewString(), Timestamp: b.clock().UTC(), Patch: patch}
	if err := b.Journal.SaveOverride(event); err != nil {
		b.logger.Error("failed to journal override", zap.String("id", event.ID), zap.Error(err))
	}
	b.Events.Publish(events.Event{Kind: events.KindOverride, Timestamp: event.Timestamp, Override: &event})
	return event, nil
}

// Run schedules the decision, trailing and daily reset jobs and serves HTTP until ctx is done.
func (b *TradingBot) Run(ctx context.Context) error {
	conf := b.Engine.Config()
	g, ctx := errgroup.WithContext(ctx)

	sched := scheduler.New(ctx, b.logger.Named("scheduler"))
	err := sched.RegisterAll(scheduler.Specs{
		Decide:     conf.App.DecisionSchedule,
		Trailing:   conf.App.TrailingSchedule,
		DailyReset: conf.App.DailyResetSchedule,
	}, scheduler.Jobs{
		Decide: func(ctx context.Context) error {
			_, err := b.Cycle(ctx)
			if errors.Is(err, marketdata.ErrEmptyFeed) {
				b.logger.Debug("feed is empty, skipping cycle")
				return nil
			}
			return err
		},
		Trailing: func(ctx context.Context) error {
			_, err := b.Trail(ctx)
			return err
		},
		DailyReset: b.DailyReset,
	})
	if err != nil {
		return errors.Wrap(err, "failed to register jobs")
	}

	sched.Start()
	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if conf.App.HTTPAddr != "" {
		srv := web.NewServer(conf.App.HTTPAddr, b.Journal, b.Recorder, b.Events, b, b.logger.Named("web"))
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	b.logger.Info("trading bot started",
		zap.String("decide", conf.App.DecisionSchedule),
		zap.String("trailing", conf.App.TrailingSchedule),
		zap.String("http", conf.App.HTTPAddr))

	return g.Wait()
}

func (b *TradingBot) record(d domain.FinalDecision) {
	if err := b.Journal.Save(d); err != nil {
		b.logger.Error("failed to journal decision", zap.String("symbol", d.Symbol), zap.Error(err))
	}
	if err := b.Recorder.RecordDecision(d); err != nil {
		b.logger.Error("failed to record decision", zap.String("symbol", d.Symbol), zap.Error(err))
	}
	metrics.ObserveDecision(d)
	b.Events.Publish(events.DecisionEvent(d))
}

func (b *TradingBot) publishFill(f trader.Fill) {
	b.Events.Publish(events.Event{Kind: events.KindFill, Timestamp: b.clock().UTC(), Symbol: f.Symbol, Fill: f})
}

func (b *TradingBot) onForcedClose(pos domain.Position, reason string) {
	metrics.ObserveExit(reason)
	b.Events.Publish(events.Event{
		Kind:      events.KindExit,
		Timestamp: b.clock().UTC(),
		Symbol:    pos.Symbol,
		Message:   reason,
	})
}
