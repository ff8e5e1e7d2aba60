package cobra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/build"
	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
	"github.com/NielsdaWheelz/wasmverify/internal/forum"
	"github.com/NielsdaWheelz/wasmverify/internal/llm"
	"github.com/NielsdaWheelz/wasmverify/internal/logging"
	"github.com/NielsdaWheelz/wasmverify/internal/pipeline"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
	"github.com/NielsdaWheelz/wasmverify/internal/proposal"
	"github.com/NielsdaWheelz/wasmverify/internal/state"
	"github.com/NielsdaWheelz/wasmverify/internal/tty"
	"github.com/NielsdaWheelz/wasmverify/internal/verify"
)

// loadConfig loads layered configuration and applies global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: globalOpts.ConfigFile,
		EnvFile:    globalOpts.EnvFile,
	})
	if err != nil {
		return config.Config{}, err
	}
	if globalOpts.WorkDir != "" {
		cfg.WorkDir = globalOpts.WorkDir
	}
	if globalOpts.OutputDir != "" {
		cfg.OutputDir = globalOpts.OutputDir
	}
	if globalOpts.StateFile != "" {
		cfg.StateFile = globalOpts.StateFile
	}
	return cfg, config.Validate(cfg)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// env bundles what every command needs.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	pipe   *pipeline.Pipeline
}

// newEnv wires a Pipeline against the real host. withLLM builds the
// completion client and requires an API key.
func newEnv(ctx context.Context, cmd *cobra.Command, withLLM bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(globalOpts.Verbose, cmd.ErrOrStderr())
	fsys := afero.NewOsFs()
	runner := exec.NewRealRunner()

	p := &pipeline.Pipeline{
		Config:      cfg,
		FS:          fsys,
		Runner:      runner,
		Proposals:   proposal.NewClient(cfg.Governance.APIURL, cfg.Governance.Timeout),
		Checkout:    build.GitCheckout{Depth: 1},
		Deescalator: build.NewDeescalator(fsys, runner, cfg.Build.DockerSocket, logger),
		Encoder:     verify.Didc{Runner: runner, Bin: cfg.Verify.Encoder},
		State:       state.NewStore(fsys, cfg.StateFile, nil),
		Logger:      logger,
	}
	if cfg.Forum.Enabled {
		p.Forum = forum.NewClient(cfg.Forum.BaseURL, cfg.Governance.Timeout)
	}
	if withLLM {
		if err := config.RequireLLMKey(cfg); err != nil {
			return nil, err
		}
		completer, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			return nil, errors.WrapWithDetails(errors.EInvalidConfig, "failed to create completion client", err,
				map[string]string{"key": "llm.provider"})
		}
		p.Resolver = &plan.Resolver{
			Completer:   completer,
			MonorepoURL: cfg.MonorepoURL,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Logger:      logging.Stage(logger, "resolve"),
		}
	}
	return &env{cfg: cfg, logger: logger, pipe: p}, nil
}

// parseProposalID parses a positional proposal id.
func parseProposalID(cmd *cobra.Command, s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		_ = cmd.Help()
		return 0, errors.New(errors.EUsage, fmt.Sprintf("invalid proposal id: %q", s))
	}
	return id, nil
}

// writeReport appends the Markdown report to the step summary and prints it,
// rendered when stdout is a terminal.
func writeReport(cmd *cobra.Command, e *env, in verify.ReportInput) {
	md := verify.Markdown(in)
	if e.cfg.SummaryFile == "" && tty.IsCI() {
		e.logger.Warn("running under CI without a step summary file; report goes to stdout only")
	}
	if err := verify.AppendSummary(e.cfg.SummaryFile, md); err != nil {
		e.logger.Warn("failed to append step summary", zap.String("path", e.cfg.SummaryFile), zap.Error(err))
	}
	printMarkdown(cmd.OutOrStdout(), md)
}

func printMarkdown(w io.Writer, md string) {
	if f, ok := w.(*os.File); ok && tty.IsTTY(f) {
		if out, err := verify.Render(md, tty.Width(f)); err == nil {
			_, _ = fmt.Fprint(w, out)
			return
		}
	}
	_, _ = fmt.Fprint(w, md)
}

// printSkipped reports a documented early exit.
func printSkipped(w io.Writer, err error) {
	code := errors.GetCode(err)
	msg := err.Error()
	if ve, ok := errors.AsVerifyError(err); ok {
		msg = ve.Msg
	}
	_, _ = fmt.Fprintf(w, "skipped: %s\n%s\n", code, msg)
}
