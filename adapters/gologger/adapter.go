package gologger

import (
	"strings"

	"github.com/goliatone/go-escrow-pipeline/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// RootLoggerName prefixes every pipeline component logger.
const RootLoggerName = "pipeline"

// ComponentName returns the logger name of a pipeline component.
func ComponentName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" {
		return RootLoggerName
	}
	if strings.HasPrefix(component, RootLoggerName+".") {
		return component
	}
	return RootLoggerName + "." + component
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(component string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, core.Logger) {
	return glog.Resolve(ComponentName(component), provider, logger)
}

// ResolveForJob resolves a component logger and returns the go-job views of
// it for worker wiring.
func ResolveForJob(
	component string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (core.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(component, provider, logger)
	return resolvedLogger, job.GoLoggerProvider(resolvedProvider), job.GoLogger(resolvedLogger)
}
