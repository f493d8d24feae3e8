package session

import (
	"github.com/fluentcare/parley/internal/admission"
	"github.com/fluentcare/parley/internal/analysis"
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/repository"
	"github.com/fluentcare/parley/internal/responder"
	"github.com/fluentcare/parley/internal/synthesizer"
	"github.com/fluentcare/parley/internal/transcriber"
	"github.com/fluentcare/parley/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*admission.Controller, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return admission.NewController(cfg.MaxGlobalPipelines, cfg.AdmissionQueueLength, cfg.MaxSessionsPerUser), nil
	})
	do.Provide(injector, func(i do.Injector) (*analysis.Analyzer, error) {
		return analysis.NewAnalyzer(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		admit := do.MustInvoke[*admission.Controller](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		resp := do.MustInvoke[responder.Responder](i)
		tts := do.MustInvoke[synthesizer.Synthesizer](i)
		analyzer := do.MustInvoke[*analysis.Analyzer](i)
		wh := do.MustInvoke[webhook.Sender](i)
		recorder := do.MustInvoke[Recorder](i)
		return NewManager(cfg, repo, admit, stt, resp, tts, analyzer, wh, recorder), nil
	})
}
