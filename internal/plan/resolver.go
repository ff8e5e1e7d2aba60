package plan

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/repo"
)

// Input is the proposal text handed to the Resolver.
type Input struct {
	Title     string
	Summary   string
	SourceURL string
	Commit    string
}

// Resolver builds BuildPlans from proposal text.
type Resolver struct {
	Completer   Completer
	MonorepoURL string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// Resolve asks the Completer for build instructions and validates them.
// A missing commit is the caller's precondition and is reported as
// E_MISSING_COMMIT. Completion failures return E_EXTRACTION_FAILED;
// structural problems return E_MALFORMED_EXTRACTION. No default plan is
// ever produced.
func (r *Resolver) Resolve(ctx context.Context, in Input) (BuildPlan, error) {
	if strings.TrimSpace(in.Commit) == "" {
		return BuildPlan{}, errors.New(errors.EMissingCommit, "commit reference required before extraction")
	}
	logger := r.logger()

	raw, err := r.Completer.Complete(ctx, Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(in),
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		return BuildPlan{}, errors.Wrap(errors.EExtractionFailed, "build instruction extraction failed", err)
	}
	logger.Debug("extraction response", zap.Int("bytes", len(raw)))

	ext, err := Parse(raw)
	if err != nil {
		return BuildPlan{}, err
	}

	repoURL := ext.RepositoryURL
	if repoURL == "" {
		repoURL = in.SourceURL
	}
	repoURL = repo.Normalize(repoURL)

	commands, dropped := stripSourceControl(ext.BuildCommands, repoURL)
	for _, c := range dropped {
		logger.Warn("dropped source-control command from plan", zap.String("command", c))
	}
	if len(commands) == 0 {
		return BuildPlan{}, errors.NewWithDetails(errors.EMalformedExtraction,
			"no build commands remain after removing source-control commands",
			map[string]string{"snippet": snippet(raw)})
	}

	if repoURL == "" {
		return BuildPlan{}, errors.NewWithDetails(errors.EMalformedExtraction,
			"no repository URL in extraction or proposal", map[string]string{"snippet": snippet(raw)})
	}

	bp := BuildPlan{
		Commit:        strings.ToLower(strings.TrimSpace(in.Commit)),
		RepoURL:       repoURL,
		Profile:       repo.Classify(repoURL, r.MonorepoURL),
		Commands:      commands,
		ArtifactPath:  strings.TrimPrefix(ext.WasmOutputPath, "./"),
		UpgradeArg:    ext.UpgradeArgs,
		ArgSchemaPath: strings.TrimPrefix(ext.DidFile, "./"),
		ArgType:       ext.ArgType,
	}
	logger.Info("build plan resolved",
		zap.String("repo", bp.RepoURL),
		zap.String("profile", string(bp.Profile)),
		zap.Int("commands", len(bp.Commands)),
		zap.String("artifact", bp.ArtifactPath),
	)
	return bp, nil
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Extraction is the validated structure returned by the completion service.
// Optional fields are "" when absent, null or not a string.
type Extraction struct {
	RepositoryURL  string
	BuildCommands  []string
	WasmOutputPath string
	UpgradeArgs    string
	DidFile        string
	ArgType        string
}

var fence = regexp.MustCompile("(?s)^\\s*```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// StripFences removes a surrounding Markdown code fence, if any.
func StripFences(s string) string {
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// Parse validates a raw completion. Invalid JSON is passed through
// jsonrepair once before giving up.
func Parse(raw string) (Extraction, error) {
	body := StripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return Extraction{}, malformed("extraction is not valid JSON", err, raw)
		}
		fields = nil
		if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
			return Extraction{}, malformed("extraction is not a JSON object", err, raw)
		}
	}
	if fields == nil {
		return Extraction{}, malformed("extraction is not a JSON object", nil, raw)
	}

	rawCommands, ok := fields["build_commands"]
	if !ok {
		return Extraction{}, malformed("build_commands missing", nil, raw)
	}
	var commands []string
	if err := json.Unmarshal(rawCommands, &commands); err != nil || commands == nil {
		return Extraction{}, malformed("build_commands must be a list of strings", err, raw)
	}
	var cleaned []string
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return Extraction{}, malformed("build_commands is empty", nil, raw)
	}

	return Extraction{
		RepositoryURL:  optionalString(fields, "repository_url"),
		BuildCommands:  cleaned,
		WasmOutputPath: optionalString(fields, "wasm_output_path"),
		UpgradeArgs:    optionalString(fields, "upgrade_args"),
		DidFile:        optionalString(fields, "did_file"),
		ArgType:        optionalString(fields, "arg_type"),
	}, nil
}

func optionalString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

var scmSegment = regexp.MustCompile(`^(?:sudo\s+)?git\s+(?:clone|fetch|checkout|pull|switch|reset|submodule)\b`)

// cloneFlagsWithValue are git clone options that consume the next argument.
var cloneFlagsWithValue = map[string]bool{
	"-b": true, "--branch": true, "-o": true, "--origin": true, "-c": true, "--config": true,
	"--depth": true, "--reference": true, "-j": true, "--jobs": true, "-u": true, "--upload-pack": true,
}

// segment is one command of a shell list and the operator that joined it
// to the previous command ("" for the first).
type segment struct {
	op  string
	cmd string
}

// stripSourceControl removes git clone/fetch/checkout (and similar) steps,
// plus any cd into the cloned directory: commands already run at the root
// of the checkout. Lists joined with &&, ||, ; or newlines are filtered
// command by command. repoURL names a directory that is always treated as
// the clone target.
func stripSourceControl(commands []string, repoURL string) (kept, dropped []string) {
	dirs := map[string]bool{}
	if name := cloneDirName(repoURL); name != "" {
		dirs[name] = true
	}
	for _, c := range commands {
		for _, seg := range splitList(c) {
			if scmSegment.MatchString(seg.cmd) {
				if name := cloneTarget(seg.cmd); name != "" {
					dirs[name] = true
				}
			}
		}
	}

	for _, c := range commands {
		var keep []segment
		for _, seg := range splitList(c) {
			if scmSegment.MatchString(seg.cmd) {
				dropped = append(dropped, seg.cmd)
				continue
			}
			if cmd, ok := rewriteCd(seg.cmd, dirs); ok {
				if cmd == "" {
					dropped = append(dropped, seg.cmd)
					continue
				}
				seg.cmd = cmd
			}
			keep = append(keep, seg)
		}
		if len(keep) > 0 {
			kept = append(kept, joinList(keep))
		}
	}
	return kept, dropped
}

// splitList splits a shell command list at top-level &&, ||, ; and newline
// operators. Quoted and escaped text is never split.
func splitList(s string) []segment {
	var (
		out     []segment
		cur     strings.Builder
		op      string
		quote   rune
		escaped bool
	)
	flush := func(next string) {
		if c := strings.TrimSpace(cur.String()); c != "" {
			out = append(out, segment{op: op, cmd: c})
			op = next
		} else if op == "" || next == "&&" || next == "||" {
			op = next
		}
		cur.Reset()
	}
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case (r == '&' || r == '|') && i+1 < len(rs) && rs[i+1] == r:
			flush(string([]rune{r, r}))
			i++
			continue
		case r == ';' || r == '\n':
			flush(";")
			continue
		}
		cur.WriteRune(r)
	}
	flush("")
	if len(out) > 0 {
		out[0].op = ""
	}
	return out
}

func joinList(segs []segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			if seg.op == ";" {
				b.WriteString("; ")
			} else {
				b.WriteString(" " + seg.op + " ")
			}
		}
		b.WriteString(seg.cmd)
	}
	return b.String()
}

// rewriteCd handles "cd <dir>[/rest]" where dir is a clone target. It
// returns "" to drop the command, "cd rest" to keep the remainder, and
// ok=false for any other command.
func rewriteCd(cmd string, dirs map[string]bool) (string, bool) {
	fields := strings.Fields(cmd)
	if len(fields) != 2 || fields[0] != "cd" {
		return "", false
	}
	target := strings.Trim(fields[1], `"'`)
	target = strings.TrimPrefix(target, "./")
	name, rest, _ := strings.Cut(strings.TrimSuffix(target, "/"), "/")
	if !dirs[name] {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	return "cd " + rest, true
}

// cloneTarget returns the directory a "git clone" command creates, or ""
// for other git commands.
func cloneTarget(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) > 0 && fields[0] == "sudo" {
		fields = fields[1:]
	}
	if len(fields) < 3 || fields[1] != "clone" {
		return ""
	}
	var args []string
	for i := 2; i < len(fields); i++ {
		f := fields[i]
		if strings.HasPrefix(f, "-") {
			if cloneFlagsWithValue[f] {
				i++
			}
			continue
		}
		args = append(args, strings.Trim(f, `"'`))
	}
	switch len(args) {
	case 0:
		return ""
	case 1:
		return cloneDirName(args[0])
	default:
		return strings.TrimSuffix(strings.TrimPrefix(args[1], "./"), "/")
	}
}

// cloneDirName is the directory git derives from a repository URL.
func cloneDirName(url string) string {
	u := strings.TrimSuffix(strings.TrimSpace(url), "/")
	u = strings.TrimSuffix(u, ".git")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	return u
}

func malformed(msg string, cause error, raw string) error {
	details := map[string]string{"snippet": snippet(raw)}
	if cause != nil {
		return errors.WrapWithDetails(errors.EMalformedExtraction, msg, cause, details)
	}
	return errors.NewWithDetails(errors.EMalformedExtraction, msg, details)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return clip(s, 200) + "..."
	}
	return s
}
