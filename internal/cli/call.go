package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"toolshim-mcp/internal/dispatch"
)

func newCallCmd(opts *rootOptions) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:     "call NAME",
		Short:   "Invoke one tool locally and print the result",
		Example: `  toolshim-mcp call reverse_tool --args '{"text":"hello"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arguments map[string]any
			if strings.TrimSpace(rawArgs) != "" {
				dec := json.NewDecoder(strings.NewReader(rawArgs))
				dec.UseNumber()
				if err := dec.Decode(&arguments); err != nil {
					return errors.Wrap(err, "--args must be a JSON object")
				}
			}

			cfg, lg, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer lg.Close()

			app, err := Build(cfg, false)
			if err != nil {
				return err
			}
			if err := app.Server.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = app.Server.Stop(stopCtx)
			}()

			res := app.Server.Invoke(cmd.Context(), dispatch.InvocationRequest{Tool: args[0], Arguments: arguments})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "tool arguments as a JSON object")
	return cmd
}
