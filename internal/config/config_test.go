package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		EnvAPIURL, EnvSSMTokenParam, EnvFirstPollDelay, EnvPollInterval,
		EnvPollBudget, EnvHistoryFile, EnvMetricsFile, EnvLogLevel,
	} {
		t.Setenv(env, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FirstPollDelay != 10*time.Second || cfg.PollInterval != 5*time.Second {
		t.Errorf("poll schedule = %s/%s, want 10s/5s", cfg.FirstPollDelay, cfg.PollInterval)
	}
	if cfg.PollBudget != 0 {
		t.Errorf("PollBudget = %s, want 0 (unbounded)", cfg.PollBudget)
	}
	if !strings.HasSuffix(cfg.HistoryFile, filepath.Join(".docflow", "history.yaml")) {
		t.Errorf("HistoryFile = %q", cfg.HistoryFile)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `apiUrl: https://docs.example.com/api/
pollInterval: 3s
pollBudget: 10m
historyFile: /tmp/h.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPollBudget, "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://docs.example.com/api/" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %s, want 3s", cfg.PollInterval)
	}
	if cfg.PollBudget != 2*time.Minute {
		t.Errorf("PollBudget = %s, want env override 2m", cfg.PollBudget)
	}
	if cfg.FirstPollDelay != 10*time.Second {
		t.Errorf("FirstPollDelay = %s, want default 10s", cfg.FirstPollDelay)
	}

	poll := cfg.Poll()
	if poll.MaxPollDuration != 2*time.Minute || poll.PollInterval != 3*time.Second {
		t.Errorf("Poll() = %+v", poll)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", content: "apiUrl: [", wantErr: "parse"},
		{name: "relative url", content: "apiUrl: /api/", wantErr: "apiUrl"},
		{name: "zero interval", content: "pollInterval: 0s", wantErr: "pollInterval"},
		{name: "negative budget", content: "pollBudget: -1s", wantErr: "pollBudget"},
		{name: "bad env duration", content: "", env: map[string]string{EnvPollInterval: "soon"}, wantErr: EnvPollInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DirectoryIsError(t *testing.T) {
	clearEnv(t)
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for directory path")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := Default()
	want.APIURL = "https://api.example.com/api/"
	want.PollBudget = 15 * time.Minute
	if err := Write(path, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIURL != want.APIURL || got.PollBudget != want.PollBudget {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
