package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
)

// EnvPrefix is the prefix for environment overrides (WASMVERIFY_LLM_API_KEY, ...).
const EnvPrefix = "WASMVERIFY"

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit config file path. When empty, wasmverify.*
	// is searched in the working directory and $HOME/.config/wasmverify.
	ConfigFile string

	// EnvFile is a dotenv file loaded before reading the environment.
	// A missing file is ignored. Empty means ".env".
	EnvFile string
}

// Load resolves configuration from defaults, file, dotenv and environment,
// then validates it.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(errors.EInvalidConfig, "failed to read "+envFile, err)
	}

	v := newViper()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("wasmverify")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wasmverify"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !stderrors.As(err, &notFound) {
			return Config{}, errors.Wrap(errors.EInvalidConfig, "failed to read config file", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Well-known CI and provider variables.
	_ = v.BindEnv("summary_file", EnvPrefix+"_SUMMARY_FILE", "GITHUB_STEP_SUMMARY")
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	return v
}

// setDefaults registers every key so AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("state_file", d.StateFile)
	v.SetDefault("events_file", d.EventsFile)
	v.SetDefault("summary_file", d.SummaryFile)
	v.SetDefault("monorepo_url", d.MonorepoURL)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("build.build_user", d.Build.BuildUser)
	v.SetDefault("build.cache_dirs", d.Build.CacheDirs)
	v.SetDefault("build.docker_socket", d.Build.DockerSocket)
	v.SetDefault("build.targeted_tool", d.Build.TargetedTool)
	v.SetDefault("build.tolerant_failures", d.Build.TolerantFailures)
	v.SetDefault("build.disable_buildkit", d.Build.DisableBuildKit)
	v.SetDefault("build.skip_targeted", d.Build.SkipTargeted)

	v.SetDefault("verify.encoder", d.Verify.Encoder)

	v.SetDefault("governance.api_url", d.Governance.APIURL)
	v.SetDefault("governance.timeout", d.Governance.Timeout)

	v.SetDefault("monitor.topics", d.Monitor.Topics)
	v.SetDefault("monitor.min_proposal_id", d.Monitor.MinProposalID)
	v.SetDefault("monitor.limit", d.Monitor.Limit)

	v.SetDefault("forum.base_url", d.Forum.BaseURL)
	v.SetDefault("forum.enabled", d.Forum.Enabled)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.EInvalidConfig, "failed to decode configuration", err)
	}
	return cfg, nil
}
