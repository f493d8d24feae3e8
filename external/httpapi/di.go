package httpapi

import (
	"github.com/fluentcare/parley/external/transport"
	"github.com/fluentcare/parley/internal/identity"
	"github.com/fluentcare/parley/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		manager := do.MustInvoke[*session.Manager](i)
		verifier := do.MustInvoke[identity.Verifier](i)
		ws := do.MustInvoke[*transport.WebSocketServer](i)
		return NewServer(manager, verifier, ws), nil
	})
}
