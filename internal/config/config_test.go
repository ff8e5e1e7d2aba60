package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MonorepoURL != DefaultMonorepoURL {
		t.Errorf("MonorepoURL = %q", cfg.MonorepoURL)
	}
	if cfg.LLM.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", cfg.LLM.MaxTokens)
	}
	if !cfg.Build.TolerantFailures || !cfg.Build.DisableBuildKit {
		t.Errorf("build defaults = %+v", cfg.Build)
	}
	if len(cfg.Monitor.Topics) != 1 || cfg.Monitor.Topics[0] != DefaultTrackedTopic {
		t.Errorf("Topics = %v", cfg.Monitor.Topics)
	}
	if cfg.Governance.Timeout != DefaultHTTPTimeout {
		t.Errorf("Timeout = %v", cfg.Governance.Timeout)
	}
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	yaml := "output_dir: from-file\nllm:\n  model: file-model\nbuild:\n  build_user: ci\n"
	if err := os.WriteFile(filepath.Join(dir, "wasmverify.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WASMVERIFY_LLM_MODEL", "env-model")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputDir != "from-file" {
		t.Errorf("OutputDir = %q, want from-file", cfg.OutputDir)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %q, want env-model (env beats file)", cfg.LLM.Model)
	}
	if cfg.Build.BuildUser != "ci" {
		t.Errorf("BuildUser = %q", cfg.Build.BuildUser)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	// Registered so t.Setenv restores the variable after godotenv sets it.
	t.Setenv("WASMVERIFY_STATE_FILE", "")
	os.Unsetenv("WASMVERIFY_STATE_FILE")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WASMVERIFY_STATE_FILE=dotenv.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StateFile != "dotenv.json" {
		t.Errorf("StateFile = %q, want dotenv.json", cfg.StateFile)
	}
}

func TestLoad_SummaryFileFromGitHubEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_STEP_SUMMARY", "/tmp/summary.md")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SummaryFile != "/tmp/summary.md" {
		t.Errorf("SummaryFile = %q", cfg.SummaryFile)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(LoadOptions{ConfigFile: "nope.yaml"})
	if errors.GetCode(err) != errors.EInvalidConfig {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.EInvalidConfig)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"empty work dir", func(c *Config) { c.WorkDir = " " }, "work_dir"},
		{"relative monorepo url", func(c *Config) { c.MonorepoURL = "dfinity/ic" }, "monorepo_url"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, "llm.provider"},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }, "llm.max_tokens"},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"user with space", func(c *Config) { c.Build.BuildUser = "a b" }, "build.build_user"},
		{"negative topic", func(c *Config) { c.Monitor.Topics = []int{-1} }, "monitor.topics"},
		{"forum disabled skips url", func(c *Config) { c.Forum.Enabled = false; c.Forum.BaseURL = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			ve, ok := errors.AsVerifyError(err)
			if !ok {
				t.Fatalf("Validate() error = %v, want VerifyError", err)
			}
			if ve.Code != errors.EInvalidConfig {
				t.Errorf("code = %q", ve.Code)
			}
			if ve.Details["key"] != tt.wantKey {
				t.Errorf("key = %q, want %q", ve.Details["key"], tt.wantKey)
			}
		})
	}
}

func TestRequireLLMKey(t *testing.T) {
	cfg := Default()
	if err := RequireLLMKey(cfg); errors.GetCode(err) != errors.EInvalidConfig {
		t.Errorf("missing key: code = %q", errors.GetCode(err))
	}
	cfg.LLM.APIKey = "sk-test"
	if err := RequireLLMKey(cfg); err != nil {
		t.Errorf("RequireLLMKey() = %v", err)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/out"
	cfg.WorkDir = "/work"

	if got := cfg.PlanPath(); got != "/out/plan.json" {
		t.Errorf("PlanPath() = %q", got)
	}
	if got := cfg.EventsPath(); got != "/out/events.jsonl" {
		t.Errorf("EventsPath() = %q", got)
	}
	if got := cfg.CheckoutDir(134567); got != "/work/proposal-134567" {
		t.Errorf("CheckoutDir() = %q", got)
	}
}
