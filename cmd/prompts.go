package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Faiz-k/Intentify/internal/api"
)

type PromptsGenerateOptions struct {
	Transcript    string
	ScreenSummary string
	OutputFormat  string
}

func NewPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Generate prompts from a captured session",
	}

	cmd.AddCommand(NewPromptsGenerateCommand())
	return cmd
}

func NewPromptsGenerateCommand() *cobra.Command {
	opts := &PromptsGenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <session-id>",
		Short: "Generate short, detailed and expert prompts for a session",
		Long: `Generate prompts from what was said and shown during a session.
The stored transcript and screen summary are used unless they are overridden with flags.`,
		Example: `  intentify prompts generate 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10
  intentify prompts generate 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10 --transcript "make the button blue"
  intentify prompts generate 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			client, err := api.NewFromConfig()
			if err != nil {
				return errors.Wrap(err, "failed to initialize API client")
			}

			prompts, err := client.GeneratePrompts(cmd.Context(), id, api.GenerateRequest{
				Transcript:    opts.Transcript,
				ScreenSummary: opts.ScreenSummary,
			})
			if err != nil {
				return err
			}
			if opts.OutputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), prompts)
			}

			out := cmd.OutOrStdout()
			heading := color.New(color.FgCyan, color.Bold).Sprint
			fmt.Fprintf(out, "%s\n%s\n\n", heading("Short"), prompts.ShortPrompt)
			fmt.Fprintf(out, "%s\n%s\n\n", heading("Detailed"), prompts.DetailedPrompt)
			fmt.Fprintf(out, "%s\n%s\n", heading("Expert"), prompts.ExpertPrompt)
			if prompts.StructuredIntent != nil {
				fmt.Fprintln(out)
				printIntent(out, prompts.StructuredIntent)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Transcript, "transcript", "", "Use this transcript instead of the stored one")
	flags.StringVar(&opts.ScreenSummary, "screen-summary", "", "Use this screen summary instead of the stored one")
	flags.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}
