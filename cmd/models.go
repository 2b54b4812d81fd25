package cmd

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Faiz-k/Intentify/internal/api"
)

func NewModelsCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Check which inference models the backend can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := api.NewFromConfig()
			if err != nil {
				return errors.Wrap(err, "failed to initialize API client")
			}

			status, err := client.Models(cmd.Context())
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\nProject: %s\nLocation: %s\n\n", client.BaseURL(), orNone(status.ProjectID), orNone(status.Location))

			names := make([]string, 0, len(status.Gemini))
			for name := range status.Gemini {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([]map[string]interface{}, 0, len(names))
			for _, name := range names {
				rows = append(rows, map[string]interface{}{"model": name, "status": status.Gemini[name]})
			}
			renderTable(out, []TableColumn{
				{Header: "MODEL", Key: "model"},
				{Header: "STATUS", Key: "status"},
			}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}
