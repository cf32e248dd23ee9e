package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestComponentName(t *testing.T) {
	cases := map[string]string{
		"":                "pipeline",
		"gojob":           "pipeline.gojob",
		".webhooks.":      "pipeline.webhooks",
		"pipeline.chain":  "pipeline.chain",
		"pipelinefriends": "pipeline.pipelinefriends",
	}
	for input, want := range cases {
		if got := ComponentName(input); got != want {
			t.Fatalf("%q: expected %q, got %q", input, want, got)
		}
	}
}

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, resolved := Resolve("gojob", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}
	if provider.lastName != "pipeline.gojob" {
		t.Fatalf("expected component logger name, got %q", provider.lastName)
	}

	resolvedProvider, resolved := Resolve("gojob", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("gojob", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	logger, jobProvider, jobLogger := ResolveForJob("gojob", provider, nil)
	if logger == nil || jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected pipeline logger and go-job bridges")
	}

	jobProvider.GetLogger("pipeline.gojob").Info("sweep job finished", "job_type", "process-paid-escrow-completion")

	captured := providerLogger.lastInfo
	if captured.msg != "sweep job finished" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "job_type" || captured.args[1] != "process-paid-escrow-completion" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	p.lastName = name
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
