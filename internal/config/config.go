// Package config handles loading and validation of wasmverify configuration.
//
// Values are layered (lowest to highest precedence): built-in defaults, a
// wasmverify.{yaml,json,toml} file, a .env file, WASMVERIFY_* environment
// variables, then explicit flag overrides applied by the CLI.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Default values.
const (
	DefaultMonorepoURL   = "https://github.com/dfinity/ic"
	DefaultGovernanceAPI = "https://ic-api.internetcomputer.org/api/v3"
	DefaultForumURL      = "https://forum.dfinity.org"
	DefaultBuildUser     = "builder"
	DefaultDockerSocket  = "/var/run/docker.sock"
	DefaultTargetedTool  = "bazel"
	DefaultEncoder       = "didc"
	DefaultLLMProvider   = "openai"
	DefaultLLMModel      = "gpt-4o-mini"
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.1
	DefaultHTTPTimeout   = 30 * time.Second

	// Topic 17 is "Protocol Canister Management" on the governance canister.
	DefaultTrackedTopic = 17
)

// Config is the fully resolved configuration for one wasmverify process.
type Config struct {
	WorkDir     string `mapstructure:"work_dir"`
	OutputDir   string `mapstructure:"output_dir"`
	StateFile   string `mapstructure:"state_file"`
	EventsFile  string `mapstructure:"events_file"`
	SummaryFile string `mapstructure:"summary_file"`
	MonorepoURL string `mapstructure:"monorepo_url"`

	LLM        LLMConfig        `mapstructure:"llm"`
	Build      BuildConfig      `mapstructure:"build"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Forum      ForumConfig      `mapstructure:"forum"`
}

// LLMConfig configures the text-completion service used for instruction extraction.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// BuildConfig configures the build executor.
type BuildConfig struct {
	BuildUser        string   `mapstructure:"build_user"`
	CacheDirs        []string `mapstructure:"cache_dirs"`
	DockerSocket     string   `mapstructure:"docker_socket"`
	TargetedTool     string   `mapstructure:"targeted_tool"`
	TolerantFailures bool     `mapstructure:"tolerant_failures"`
	DisableBuildKit  bool     `mapstructure:"disable_buildkit"`
	SkipTargeted     bool     `mapstructure:"skip_targeted"`
}

// VerifyConfig configures the hash verifier.
type VerifyConfig struct {
	Encoder string `mapstructure:"encoder"`
}

// GovernanceConfig configures the proposal ingestion client.
type GovernanceConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitorConfig configures proposal selection.
type MonitorConfig struct {
	Topics        []int  `mapstructure:"topics"`
	MinProposalID uint64 `mapstructure:"min_proposal_id"`
	Limit         int    `mapstructure:"limit"`
}

// ForumConfig configures the optional forum thread lookup.
type ForumConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir:     "work",
		OutputDir:   "out",
		StateFile:   "verification_state.json",
		MonorepoURL: DefaultMonorepoURL,
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Model:       DefaultLLMModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Build: BuildConfig{
			BuildUser:        DefaultBuildUser,
			DockerSocket:     DefaultDockerSocket,
			TargetedTool:     DefaultTargetedTool,
			TolerantFailures: true,
			DisableBuildKit:  true,
		},
		Verify: VerifyConfig{Encoder: DefaultEncoder},
		Governance: GovernanceConfig{
			APIURL:  DefaultGovernanceAPI,
			Timeout: DefaultHTTPTimeout,
		},
		Monitor: MonitorConfig{
			Topics: []int{DefaultTrackedTopic},
			Limit:  50,
		},
		Forum: ForumConfig{BaseURL: DefaultForumURL, Enabled: true},
	}
}

// Fixed file names inside OutputDir. The build host and the verify CLI
// exchange data through these paths.
const (
	ProposalFileName = "proposal.json"
	PlanFileName     = "plan.json"
	BuildLogName     = "build.log"
	OutcomeFileName  = "outcome.json"
	ArtifactBaseName = "artifact"
)

// ProposalPath returns <output_dir>/proposal.json.
func (c Config) ProposalPath() string { return filepath.Join(c.OutputDir, ProposalFileName) }

// PlanPath returns <output_dir>/plan.json.
func (c Config) PlanPath() string { return filepath.Join(c.OutputDir, PlanFileName) }

// BuildLogPath returns <output_dir>/build.log.
func (c Config) BuildLogPath() string { return filepath.Join(c.OutputDir, BuildLogName) }

// OutcomePath returns <output_dir>/outcome.json.
func (c Config) OutcomePath() string { return filepath.Join(c.OutputDir, OutcomeFileName) }

// EventsPath returns the events file, defaulting to <output_dir>/events.jsonl.
func (c Config) EventsPath() string {
	if c.EventsFile != "" {
		return c.EventsFile
	}
	return filepath.Join(c.OutputDir, "events.jsonl")
}

// CheckoutDir returns the per-proposal checkout directory under WorkDir.
func (c Config) CheckoutDir(proposalID uint64) string {
	return filepath.Join(c.WorkDir, "proposal-"+strconv.FormatUint(proposalID, 10))
}
