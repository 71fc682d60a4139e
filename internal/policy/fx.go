package policy

import (
	"context"

	"github.com/lumahq/lumina/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewEngineFromConfig(cfg config.Config, log *zap.Logger) (*Engine, error) {
	vocab := DefaultVocabulary()
	if cfg.PolicyVocabularyPath != "" {
		loaded, err := LoadVocabularyFile(cfg.PolicyVocabularyPath)
		if err != nil {
			return nil, err
		}
		vocab = loaded
	}
	return NewEngine(vocab, log), nil
}

func registerWatcher(lc fx.Lifecycle, cfg config.Config, engine *Engine, log *zap.Logger) {
	if cfg.PolicyVocabularyPath == "" {
		return
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return watchVocabulary(watchCtx, engine, cfg.PolicyVocabularyPath, log.Named("policy"))
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Module("policy",
	fx.Provide(NewEngineFromConfig),
	fx.Invoke(registerWatcher),
)
