package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects build identity, endpoints, credential sources and
// feature flags, then emits a single structured event summarising how the
// command was configured. Credential values are never logged, only where
// they came from.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	initDuration time.Duration

	endpoints   map[string]string
	credentials map[string]string
	files       map[string]string
	features    map[string]bool
	config      map[string]string
}

// NewStartupLogger creates a StartupLogger for the named command
// (e.g. "run", "status").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:        name,
		endpoints:   make(map[string]string),
		credentials: make(map[string]string),
		files:       make(map[string]string),
		features:    make(map[string]bool),
		config:      make(map[string]string),
	}
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp baked into the binary at build time.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// Endpoint registers a remote endpoint the command talks to.
func (s *StartupLogger) Endpoint(label, url string) *StartupLogger {
	s.endpoints[label] = url
	return s
}

// Credential registers where a credential is read from (env var, file,
// SSM path). Only the location is logged, never the value.
func (s *StartupLogger) Credential(label, location string) *StartupLogger {
	s.credentials[label] = location
	return s
}

// File registers a local file the command reads or writes.
func (s *StartupLogger) File(label, path string) *StartupLogger {
	s.files[label] = path
	return s
}

// Feature registers a boolean feature flag (e.g. "metrics", "picker").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long setup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured DEBUG event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Debug()

	build := zerolog.Dict().
		Str("command", s.name).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(EnvLogLevel))
	if s.commitHash != "" {
		build = build.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		build = build.Str("buildTime", s.buildTime)
	}
	evt = evt.Dict("build", build)

	// Resources: only non-empty maps are attached.
	resources := zerolog.Dict()
	hasResources := false
	if len(s.endpoints) > 0 {
		resources = resources.Dict("endpoints", dictFromMap(s.endpoints))
		hasResources = true
	}
	if len(s.credentials) > 0 {
		resources = resources.Dict("credentials", dictFromMap(s.credentials))
		hasResources = true
	}
	if len(s.files) > 0 {
		resources = resources.Dict("files", dictFromMap(s.files))
		hasResources = true
	}
	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
