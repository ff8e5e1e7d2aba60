package config

import (
	"net/url"
	"strings"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

// Validate checks a resolved configuration.
// Returns E_INVALID_CONFIG with the offending key on the first problem found.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return invalid("work_dir", "must be non-empty")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return invalid("output_dir", "must be non-empty")
	}
	if strings.TrimSpace(cfg.StateFile) == "" {
		return invalid("state_file", "must be non-empty")
	}
	if err := validateURL("monorepo_url", cfg.MonorepoURL); err != nil {
		return err
	}
	if err := validateURL("governance.api_url", cfg.Governance.APIURL); err != nil {
		return err
	}
	if cfg.Forum.Enabled {
		if err := validateURL("forum.base_url", cfg.Forum.BaseURL); err != nil {
			return err
		}
	}

	switch cfg.LLM.Provider {
	case "openai", "gemini":
	default:
		return invalid("llm.provider", "must be one of: openai, gemini")
	}
	if cfg.LLM.BaseURL != "" {
		if err := validateURL("llm.base_url", cfg.LLM.BaseURL); err != nil {
			return err
		}
	}
	if cfg.LLM.MaxTokens <= 0 {
		return invalid("llm.max_tokens", "must be positive")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return invalid("llm.temperature", "must be between 0 and 2")
	}

	if cfg.Build.TargetedTool == "" {
		return invalid("build.targeted_tool", "must be non-empty")
	}
	if cfg.Build.BuildUser == "" || strings.ContainsAny(cfg.Build.BuildUser, " \t:/") {
		return invalid("build.build_user", "must be a plain user name")
	}
	if cfg.Verify.Encoder == "" {
		return invalid("verify.encoder", "must be non-empty")
	}

	for _, topic := range cfg.Monitor.Topics {
		if topic < 0 {
			return invalid("monitor.topics", "topics must be non-negative")
		}
	}
	if cfg.Monitor.Limit < 0 {
		return invalid("monitor.limit", "must be non-negative")
	}
	return nil
}

// RequireLLMKey reports E_INVALID_CONFIG when no API key is configured.
// Only commands that call the completion service need this.
func RequireLLMKey(cfg Config) error {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return invalid("llm.api_key", "missing; set "+EnvPrefix+"_LLM_API_KEY")
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(key, "must be an absolute URL")
	}
	return nil
}

func invalid(key, msg string) error {
	return errors.NewWithDetails(errors.EInvalidConfig, key+" "+msg, map[string]string{"key": key})
}
