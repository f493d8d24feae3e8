package metrics

import (
	"github.com/fluentcare/parley/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Metrics, error) {
		return New(prometheus.DefaultRegisterer), nil
	})
	do.Provide(injector, func(i do.Injector) (session.Recorder, error) {
		return do.MustInvoke[*Metrics](i), nil
	})
}
