package synthesizer

import (
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/synthesizer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (synthesizer.Synthesizer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewGeminiTTSSynthesizer(GeminiTTSConfig{
			APIKey:       c.GeminiAPIKey,
			Model:        c.GeminiTTSModel,
			DefaultVoice: c.GeminiTTSVoice,
		}), nil
	})
}
