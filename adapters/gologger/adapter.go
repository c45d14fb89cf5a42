package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names the billing runtime resolves for its major components.
const (
	ComponentBilling  = "iap"
	ComponentWebhooks = "iap.webhooks"
	ComponentInbound  = "iap.inbound"
	ComponentJobs     = "iap.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop. A blank
// component name resolves the billing root logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = ComponentBilling
	}
	return glog.Resolve(name, provider, logger)
}

// Named returns the provider's logger for one billing component, falling back
// to a nop logger when the provider has nothing to offer.
func Named(provider glog.LoggerProvider, component string) glog.Logger {
	if provider == nil {
		return glog.Nop()
	}
	if logger := provider.GetLogger(component); logger != nil {
		return logger
	}
	return glog.Nop()
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the component logger and returns the go-job bridges
// the queue worker runtime consumes alongside it.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
