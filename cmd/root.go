package cmd

import (
	"fmt"

	"github.com/Faiz-k/Intentify/config"
	"github.com/Faiz-k/Intentify/internal/util"
	"github.com/Faiz-k/Intentify/internal/version"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "intentify",
		Short: "Intentify capture CLI",
		Long: `Intentify records what you say while showing what is on your screen, and turns it into prompts.
It captures the microphone together with a screen share, keeps a small control window open while recording,
and uploads the audio and a still frame to the Intentify backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLoggerTo(cmd.ErrOrStderr(), verbose)
			util.SetupGlobalLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.Get()
				fmt.Fprintf(cmd.OutOrStdout(), "Intentify version %s, build %s\n", info.Version, info.GitCommit)
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("api-url", "", "Intentify backend URL")
	config.BindFlag("api.endpoint", rootCmd.PersistentFlags().Lookup("api-url"))

	rootCmd.AddCommand(NewCaptureCommand())
	rootCmd.AddCommand(NewSessionCommand())
	rootCmd.AddCommand(NewPromptsCommand())
	rootCmd.AddCommand(NewModelsCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
