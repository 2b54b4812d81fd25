package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Faiz-k/Intentify/config"
	"github.com/Faiz-k/Intentify/internal/api"
	"github.com/Faiz-k/Intentify/internal/frame"
)

func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and inspect capture sessions",
	}

	cmd.AddCommand(NewSessionStartCommand())
	cmd.AddCommand(NewSessionShowCommand())
	cmd.AddCommand(NewSessionUploadCommand())
	return cmd
}

func NewSessionStartCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create a new session",
		Example: `  intentify session start
  intentify session start -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := api.NewFromConfig()
			if err != nil {
				return errors.Wrap(err, "failed to initialize API client")
			}

			sess, err := client.StartSession(cmd.Context())
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), sess)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s created\n", color.CyanString(sess.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}

func NewSessionShowCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session",
		Example: `  intentify session show 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10
  intentify session show 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10 -o json`,
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

			sess, err := client.GetSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), sess)
			}
			printSession(cmd.OutOrStdout(), sess)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}

type SessionUploadOptions struct {
	AudioPath    string
	ScreenPath   string
	OutputFormat string
}

func NewSessionUploadCommand() *cobra.Command {
	opts := &SessionUploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload <session-id>",
		Short: "Upload a standalone recording or screenshot to a session",
		Long: `Upload a previously recorded audio file for transcription, or a screenshot for a screen summary.
The screenshot may be any PNG, JPEG or GIF image; it is converted to PNG before upload.`,
		Example: `  intentify session upload 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10 --audio recording.webm
  intentify session upload 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10 --screen shot.jpg -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			if (opts.AudioPath == "") == (opts.ScreenPath == "") {
				return errors.New("exactly one of --audio or --screen is required")
			}
			client, err := api.NewFromConfig()
			if err != nil {
				return errors.Wrap(err, "failed to initialize API client")
			}
			return runSessionUpload(cmd, client, id, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.AudioPath, "audio", "", "WebM/Opus recording to transcribe")
	flags.StringVar(&opts.ScreenPath, "screen", "", "Screenshot to summarise")
	flags.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}

func runSessionUpload(cmd *cobra.Command, client *api.Client, id string, opts *SessionUploadOptions) error {
	var (
		res *api.CaptureResult
		err error
	)
	if opts.AudioPath != "" {
		audio, rerr := os.ReadFile(opts.AudioPath)
		if rerr != nil {
			return errors.Wrapf(rerr, "failed to read %s", opts.AudioPath)
		}
		res, err = client.UploadAudio(cmd.Context(), id, audio)
	} else {
		f, ferr := (&frame.Extractor{MaxWidth: config.GetFrameMaxWidth()}).FromFile(opts.ScreenPath)
		if ferr != nil {
			return errors.Wrapf(ferr, "failed to read %s", opts.ScreenPath)
		}
		res, err = client.UploadScreen(cmd.Context(), id, f.PNG)
	}
	if err != nil {
		return err
	}

	if opts.OutputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}
	label := color.New(color.FgCyan).Sprint
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", label("Session:"), orNone(res.SessionID))
	if opts.AudioPath != "" {
		fmt.Fprintf(out, "%s %s\n", label("Transcript:"), orNone(res.Transcript))
	} else {
		fmt.Fprintf(out, "%s %s\n", label("Screen:"), orNone(res.ScreenSummary))
	}
	return nil
}

func parseSessionID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid session id %q", s)
	}
	return id.String(), nil
}

func printSession(out io.Writer, s *api.Session) {
	label := color.New(color.FgCyan).Sprint
	fmt.Fprintf(out, "%s %s\n", label("Session:"), s.ID)
	fmt.Fprintf(out, "%s %s\n", label("Created:"), s.CreatedAt)
	fmt.Fprintf(out, "%s %s\n", label("Updated:"), s.UpdatedAt)
	fmt.Fprintf(out, "%s %s\n", label("Transcript:"), orNone(s.Transcript))
	fmt.Fprintf(out, "%s %s\n", label("Screen:"), orNone(s.ScreenSummary))
	if s.StructuredIntent != nil {
		printIntent(out, s.StructuredIntent)
	}
}

func printIntent(out io.Writer, in *api.StructuredIntent) {
	label := color.New(color.FgCyan).Sprint
	fmt.Fprintln(out, label("Intent:"))
	fmt.Fprintf(out, "  Goal: %s\n", orNone(in.Goal))
	fmt.Fprintf(out, "  Current state: %s\n", orNone(in.CurrentState))
	fmt.Fprintf(out, "  Constraints: %s\n", orNone(strings.Join(in.Constraints, ", ")))
	fmt.Fprintf(out, "  Tools: %s\n", orNone(strings.Join(in.Tools, ", ")))
	fmt.Fprintf(out, "  Skill level: %s\n", orNone(in.SkillLevel))
	fmt.Fprintf(out, "  Desired output: %s\n", orNone(in.DesiredOutput))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	fmt.Fprintln(out, string(data))
	return nil
}
