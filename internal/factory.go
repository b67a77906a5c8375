package internal

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/services/fusion"
	"github.com/vadiminshakov/fusiontrader/internal/services/integrator"
	"github.com/vadiminshakov/fusiontrader/internal/services/regime"
	"github.com/vadiminshakov/fusiontrader/internal/services/trader"
	"github.com/vadiminshakov/fusiontrader/internal/storage/decisions"
	"github.com/vadiminshakov/fusiontrader/internal/storage/paperstate"
	"github.com/vadiminshakov/fusiontrader/internal/storage/recorder"
)

const paperScope = "paper"

type closer interface {
	Close()
}

// newRegimeSource loads the regime model when configured. A model that fails to load
// is logged and the rule detector stays in charge.
func newRegimeSource(conf config.Config, logger *zap.Logger) (regime.Source, closer) {
	path := conf.App.RegimeModelPath
	if path == "" {
		return nil, nil
	}
	clf, err := regime.NewOnnxClassifier(path, regime.FeatureCount, regime.RegimeLabels)
	if err != nil {
		logger.Warn("regime model unavailable, using rule detector", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	logger.Info("regime model loaded", zap.String("path", path))
	return regime.NewModelDetector(regime.NewFallback(clf, logger), regime.NewDetector(conf), logger), clf
}

// newAISource loads the meta model when configured, otherwise the neutral stub votes.
func newAISource(conf config.Config, logger *zap.Logger) (fusion.AISource, closer) {
	path := conf.App.MetaModelPath
	if path == "" {
		return fusion.StubAI{}, nil
	}
	clf, err := regime.NewOnnxClassifier(path, integrator.MetaFeatureCount, integrator.DecisionLabels)
	if err != nil {
		logger.Warn("meta model unavailable, AI side votes HOLD", zap.String("path", path), zap.Error(err))
		return integrator.NewMeta(nil, logger), nil
	}
	logger.Info("meta model loaded", zap.String("path", path))
	return integrator.NewMeta(clf, logger), clf
}

func newRecorder(conf config.Config) (recorder.Recorder, error) {
	if conf.App.DBPath == "" {
		return recorder.NewNoopRecorder(), nil
	}
	rec, err := recorder.NewSQLiteRecorder(conf.App.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open decision database")
	}
	return rec, nil
}

func newJournal(conf config.Config) (*decisions.WALStore, error) {
	journal, err := decisions.NewWALStore(conf.App.JournalDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open decision journal")
	}
	return journal, nil
}

func newPaperBroker(conf config.Config, logger *zap.Logger, now func() time.Time, hook trader.CloseHook) (*trader.PaperTrader, error) {
	store, err := paperstate.NewStore(conf.App.PaperStateDir, paperScope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open paper state")
	}
	broker, err := trader.NewPaperTrader(logger.Named("paper"),
		trader.WithBalance(conf.App.PaperBalance),
		trader.WithStore(store),
		trader.WithClock(now),
		trader.WithCloseHook(hook),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create paper broker")
	}
	return broker, nil
}
