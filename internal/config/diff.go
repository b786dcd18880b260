package config

// ConfigDiff describes what changed between two configs. Only the log
// level can be applied to a running server; everything else needs a
// restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when a field outside the hot-reloadable set
	// changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldRest, newRest := *old, *new
	oldRest.Server.LogLevel = ""
	newRest.Server.LogLevel = ""
	if !equalRest(&oldRest, &newRest) {
		d.RestartRequired = true
	}
	return d
}

// equalRest compares everything but the hot-reloadable fields. Pointer
// fields are compared by value.
func equalRest(a, b *Config) bool {
	if !equalTLS(a.Server.TLS, b.Server.TLS) {
		return false
	}
	if a.Server.ListenAddr != b.Server.ListenAddr {
		return false
	}
	if a.RateLimit != b.RateLimit || a.Queue != b.Queue || a.Session != b.Session ||
		a.Stream != b.Stream || a.Breaker != b.Breaker || a.Transcode != b.Transcode {
		return false
	}
	if a.Providers.MockTone.IsEnabled() != b.Providers.MockTone.IsEnabled() ||
		a.Providers.MockTone.SampleRateHz != b.Providers.MockTone.SampleRateHz {
		return false
	}
	return a.Providers.Coqui == b.Providers.Coqui
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
