package responder

import (
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/responder"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (responder.Responder, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewGeminiResponder(GeminiConfig{
			APIKey: c.GeminiAPIKey,
			Model:  c.GeminiModel,
		}), nil
	})
}
