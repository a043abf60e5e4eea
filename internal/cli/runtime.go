package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/cache"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm/gemini"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm/openai"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
	"github.com/joseph-ayodele/pdf-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/pdf-analyzer/internal/progress"
)

// Runtime is the wired set of collaborators shared by the commands.
type Runtime struct {
	Cfg        *common.Config
	Logger     *slog.Logger
	Registry   *progress.Registry
	Reader     *ocr.Reader
	Recognizer ocr.Recognizer
	Dispatcher *async.Dispatcher[ocr.Recognition]
	Cache      cache.Store
	Checker    llm.RuleChecker
	Processor  *pipeline.Processor
}

// OCRConfig maps application config onto the reader/recognizer config.
func OCRConfig(cfg common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftotext:   cfg.Pdftotext,
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		Languages:   cfg.Languages,
		DPI:         cfg.RenderDPI,
		TessdataDir: cfg.TessdataDir,
		APIURL:      cfg.APIURL,
		Timeout:     cfg.Timeout,
	}
}

// NewRuleChecker builds the configured inference provider.
func NewRuleChecker(cfg common.LLMConfig, logger *slog.Logger) (llm.RuleChecker, error) {
	switch cfg.Provider {
	case "gemini", "":
		return gemini.NewClient(gemini.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         cfg.Timeout,
		}, logger), nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewRuntime validates cfg and wires every collaborator of the pipeline.
func NewRuntime(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runner := ocr.NewExecRunner(logger)
	ocrCfg := OCRConfig(cfg.OCR)

	recognizer, err := ocr.NewRecognizer(cfg.OCR.Backend, ocrCfg, runner, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "ocr backend", err)
	}
	checker, err := NewRuleChecker(cfg.LLM, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "llm provider", err)
	}
	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Cfg:        cfg,
		Logger:     logger,
		Registry:   progress.NewRegistry(logger),
		Reader:     ocr.NewReader(ocrCfg, runner, logger),
		Recognizer: recognizer,
		Cache:      store,
		Checker:    checker,
		Dispatcher: async.NewDispatcher[ocr.Recognition](cfg.OCR.Concurrency, logger,
			async.WithName("ocr"),
			async.WithTaskTimeout(cfg.OCR.Timeout),
			async.WithRateLimit(cfg.OCR.RateLimit),
		),
	}

	var pc pipeline.RecognitionCache
	if _, none := store.(cache.Nop); !none {
		pc = store
	}
	rt.Processor, err = pipeline.NewProcessor(pipeline.Deps{
		Reader:     rt.Reader,
		Recognizer: rt.Recognizer,
		Dispatcher: rt.Dispatcher,
		Cache:      pc,
		Checker:    rt.Checker,
		Progress:   rt.Registry,
	}, pipeline.Config{
		TextThreshold: cfg.Pipeline.TextThreshold,
		Languages:     rt.Reader.Config().Languages,
		CleanupDelay:  cfg.Pipeline.CleanupDelay,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return rt, nil
}

// Close drains the recognition dispatcher and releases the cache.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.Dispatcher.Shutdown(ctx)
	return rt.Cache.Close()
}
