package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
)

// ToolCheck is one line of the doctor report.
type ToolCheck struct {
	Name     string
	Version  string
	Required bool
	Err      error
}

// DoctorReport holds everything doctor prints.
type DoctorReport struct {
	Tools      []ToolCheck
	Superuser  bool
	WorkDir    string
	OutputDir  string
	StateFile  string
	LLMBackend string
}

// OK reports whether every required tool is present.
func (r DoctorReport) OK() bool {
	for _, t := range r.Tools {
		if t.Required && t.Err != nil {
			return false
		}
	}
	return true
}

// Doctor checks the host tooling the build and verify stages shell out to.
// A missing required tool is E_TOOL_NOT_INSTALLED; optional ones are only
// reported.
func Doctor(ctx context.Context, cr exec.CommandRunner, cfg config.Config, superuser bool) (DoctorReport, error) {
	r := DoctorReport{
		Superuser:  superuser,
		WorkDir:    cfg.WorkDir,
		OutputDir:  cfg.OutputDir,
		StateFile:  cfg.StateFile,
		LLMBackend: cfg.LLM.Provider + "/" + cfg.LLM.Model,
	}
	specs := []struct {
		name     string
		args     []string
		required bool
	}{
		{"git", []string{"--version"}, false},
		{"bash", []string{"--version"}, true},
		{cfg.Verify.Encoder, []string{"--version"}, false},
		{cfg.Build.TargetedTool, []string{"--version"}, false},
	}
	for _, s := range specs {
		if s.name == "" {
			continue
		}
		v, err := toolVersion(ctx, cr, s.name, s.args)
		r.Tools = append(r.Tools, ToolCheck{Name: s.name, Version: v, Required: s.required, Err: err})
	}

	for _, t := range r.Tools {
		if t.Required && t.Err != nil {
			return r, t.Err
		}
	}
	return r, nil
}

// toolVersion runs "<name> <args>" and returns the first output line.
func toolVersion(ctx context.Context, cr exec.CommandRunner, name string, args []string) (string, error) {
	res, err := cr.Run(ctx, name, args, exec.RunOpts{})
	if err != nil {
		return "", errors.NewWithDetails(errors.EToolNotInstalled, name+" is not installed or not on PATH",
			map[string]string{"tool": name})
	}
	if res.ExitCode != 0 {
		return "", errors.NewWithDetails(errors.EToolNotInstalled, name+" "+strings.Join(args, " ")+" failed",
			map[string]string{"tool": name})
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		out = strings.TrimSpace(res.Stderr)
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

// WriteDoctorReport writes the stable key: value output.
func WriteDoctorReport(w io.Writer, r DoctorReport) {
	for _, t := range r.Tools {
		key := strings.ReplaceAll(t.Name, "-", "_") + "_version"
		if t.Err != nil {
			_, _ = fmt.Fprintf(w, "%s: missing\n", key)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", key, t.Version)
	}
	_, _ = fmt.Fprintf(w, "superuser: %s\n", boolStr(r.Superuser))
	_, _ = fmt.Fprintf(w, "work_dir: %s\n", r.WorkDir)
	_, _ = fmt.Fprintf(w, "output_dir: %s\n", r.OutputDir)
	_, _ = fmt.Fprintf(w, "state_file: %s\n", r.StateFile)
	_, _ = fmt.Fprintf(w, "llm: %s\n", r.LLMBackend)
	if r.OK() {
		_, _ = fmt.Fprintln(w, "status: ok")
	} else {
		_, _ = fmt.Fprintln(w, "status: missing required tools")
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
