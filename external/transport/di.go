package transport

import (
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/identity"
	"github.com/fluentcare/parley/internal/session"
	"github.com/fluentcare/parley/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*WebSocketServer, error) {
		c := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*session.Manager](i)
		verifier := do.MustInvoke[identity.Verifier](i)
		var hooks transport.SessionHooks = manager
		return NewWebSocketServer(hooks, verifier, NewOpusDecoderFactory(c.SampleRate)), nil
	})
}
