package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/mock"
)

func TestDiff_NoChange(t *testing.T) {
	d := config.Diff(config.Defaults(), config.Defaults())
	if d.LogLevelChanged || d.RestartRequired {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevelOnly(t *testing.T) {
	old := config.Defaults()
	updated := config.Defaults()
	updated.Server.LogLevel = config.LogDebug

	d := config.Diff(old, updated)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if d.RestartRequired {
		t.Error("log level change should not require restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	old := config.Defaults()
	updated := config.Defaults()
	updated.Queue.WorkerCount = 16

	d := config.Diff(old, updated)
	if !d.RestartRequired {
		t.Error("worker count change should require restart")
	}
	if d.LogLevelChanged {
		t.Error("log level did not change")
	}
}

func TestRegistry_CreateUnknown(t *testing.T) {
	r := config.NewRegistry()
	if _, err := r.Create("nope", config.Defaults()); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateRegistered(t *testing.T) {
	r := config.NewRegistry()
	r.Register("mock", func(cfg *config.Config) (tts.Provider, error) {
		return &mock.Provider{IDValue: "mock"}, nil
	})
	p, err := r.Create("mock", config.Defaults())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID() != "mock" {
		t.Errorf("ID = %q, want mock", p.ID())
	}
}

func TestEnabledProviders(t *testing.T) {
	cfg := config.Defaults()
	if got := cfg.EnabledProviders(); len(got) != 1 || got[0] != "mock_tone" {
		t.Errorf("EnabledProviders = %v, want [mock_tone]", got)
	}

	cfg.Providers.Coqui.Enabled = true
	if got := cfg.EnabledProviders(); len(got) != 2 || got[1] != "coqui" {
		t.Errorf("EnabledProviders = %v, want [mock_tone coqui]", got)
	}
}
