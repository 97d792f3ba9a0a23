package cli

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"toolshim-mcp/internal/server"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools and their argument schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer lg.Close()

			app, err := Build(cfg, false)
			if err != nil {
				return err
			}
			list := server.ToolsFrom(app.Registry.List())

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(list)
			}
			return errors.Newf("unknown output format %q", output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}
