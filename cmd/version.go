package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faiz-k/Intentify/internal/version"
)

func NewVersionCommand() *cobra.Command {
	var (
		short        bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch {
			case short:
				fmt.Fprintln(out, info.Version)
			case outputFormat == "json":
				return printJSON(out, info)
			default:
				fmt.Fprintf(out, "Client:\n")
				fmt.Fprintf(out, "  Version:     %s\n", info.Version)
				fmt.Fprintf(out, "  Go version:  %s\n", info.GoVersion)
				fmt.Fprintf(out, "  Git commit:  %s\n", info.GitCommit)
				fmt.Fprintf(out, "  Built:       %s\n", info.FormattedTime)
				fmt.Fprintf(out, "  OS/Arch:     %s/%s\n", info.OS, info.Arch)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}
