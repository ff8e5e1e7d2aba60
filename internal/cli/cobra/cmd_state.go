package cobra

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/wasmverify/internal/errors"
	"github.com/NielsdaWheelz/wasmverify/internal/render"
	"github.com/NielsdaWheelz/wasmverify/internal/state"
)

func newStateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "state [proposal-id]",
		Short: "Show recorded verification state",
		Long: `Show recorded verification state as a table, or one proposal's entry as JSON.

Arguments:
  proposal-id    optional; print only this entry (E_USAGE when absent)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st := state.NewStore(afero.NewOsFs(), cfg.StateFile, nil)

			d := st.Load()
			var v any = d
			if len(args) == 0 && !asJSON {
				now := time.Now()
				return render.WriteStateTable(cmd.OutOrStdout(), render.FormatStateRows(d, now), d.LastCheckedTimestamp, now)
			}
			if len(args) == 1 {
				id, err := parseProposalID(cmd, args[0])
				if err != nil {
					return err
				}
				e, ok := st.Get(id)
				if !ok {
					return errors.New(errors.EUsage, fmt.Sprintf("proposal %d not found in %s", id, cfg.StateFile))
				}
				v = e
			}

			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to encode state", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the whole state document as JSON")

	return cmd
}
