package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/exec"
)

// Arg is an upgrade-argument literal with its optional Candid metadata.
type Arg struct {
	Literal    string
	SchemaPath string // .did file, resolved against Dir when relative
	Type       string // e.g. "(opt InternetIdentityInit)"
	Dir        string
}

// Encoder turns a Candid literal into its binary encoding.
type Encoder interface {
	Encode(ctx context.Context, arg Arg) ([]byte, error)
}

// Didc encodes arguments with the didc command-line tool.
type Didc struct {
	Runner exec.CommandRunner
	Bin    string
}

// Encode implements Encoder. didc prints the encoding as hex.
// Failures are E_ARGUMENT_ENCODING_FAILED.
func (d Didc) Encode(ctx context.Context, arg Arg) ([]byte, error) {
	bin := d.Bin
	if bin == "" {
		bin = "didc"
	}
	args := []string{"encode"}
	if arg.SchemaPath != "" {
		schema := arg.SchemaPath
		if !filepath.IsAbs(schema) && arg.Dir != "" {
			schema = filepath.Join(arg.Dir, schema)
		}
		args = append(args, "-d", schema)
	}
	if t := strings.TrimSpace(arg.Type); t != "" {
		if !strings.HasPrefix(t, "(") {
			t = "(" + t + ")"
		}
		args = append(args, "-t", t)
	}
	args = append(args, arg.Literal)

	res, err := d.Runner.Run(ctx, bin, args, exec.RunOpts{Dir: arg.Dir})
	if err != nil {
		return nil, errors.Wrap(errors.EArgumentEncodingFailed, "failed to run "+bin, err)
	}
	if res.ExitCode != 0 {
		return nil, errors.NewWithDetails(errors.EArgumentEncodingFailed,
			fmt.Sprintf("%s encode exited %d", bin, res.ExitCode),
			map[string]string{"stderr": strings.TrimSpace(res.Stderr)})
	}
	out, err := hex.DecodeString(strings.TrimSpace(res.Stdout))
	if err != nil {
		return nil, errors.Wrap(errors.EArgumentEncodingFailed, "encoder output is not hex", err)
	}
	return out, nil
}
