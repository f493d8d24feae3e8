package identity

import (
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/identity"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (identity.Verifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewJWTVerifier(c.TokenSigningSecret), nil
	})
}
