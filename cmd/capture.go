package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Faiz-k/Intentify/config"
	"github.com/Faiz-k/Intentify/internal/api"
	"github.com/Faiz-k/Intentify/internal/capture"
	"github.com/Faiz-k/Intentify/internal/frame"
	"github.com/Faiz-k/Intentify/internal/media"
	"github.com/Faiz-k/Intentify/internal/recorder"
	"github.com/Faiz-k/Intentify/internal/surface"
	"github.com/Faiz-k/Intentify/internal/util"
)

type CaptureOptions struct {
	NewSession   bool
	ImagePath    string
	NoSurface    bool
	OutputFormat string
}

func NewCaptureCommand() *cobra.Command {
	opts := &CaptureOptions{}

	cmd := &cobra.Command{
		Use:   "capture [session-id]",
		Short: "Record your voice and screen for a session",
		Long: `Record the microphone while sharing the screen, then upload the audio and a still frame of the screen.

Recording stops when you press Enter, click Stop in the control window, the shared screen goes away
or the maximum duration is reached. Ctrl+C cancels the capture without uploading anything.`,
		Example: `  intentify capture 0b8f5c1e-7a0d-4c53-9a57-3f4b1e2d9c10
  intentify capture --new
  intentify capture --new --max-duration 2m --no-surface
  intentify capture --new --screen-source adb --adb-serial emulator-5554
  intentify capture --new --image ./screenshot.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.NewSession, "new", false, "Create a new session before capturing")
	flags.StringVar(&opts.ImagePath, "image", "", "Upload this image instead of recording")
	flags.BoolVar(&opts.NoSurface, "no-surface", false, "Do not open the control window")
	flags.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")

	flags.Duration("max-duration", 0, "Stop recording automatically after this long")
	flags.Duration("timeslice", 0, "Interval at which recorded audio is flushed")
	flags.Duration("upload-timeout", 0, "Give up on the upload after this long")
	flags.String("screen-source", "", "Screen source (ffmpeg or adb)")
	flags.String("screen-input", "", "ffmpeg screen input, e.g. :0.0 or 1:none")
	flags.String("adb-serial", "", "Serial of the Android device to share")
	flags.String("audio-device", "", "ffmpeg audio input device")
	flags.String("browser-command", "", "Command that opens the control window, {url} is replaced by its address")

	config.BindFlag("capture.max_duration", flags.Lookup("max-duration"))
	config.BindFlag("capture.timeslice", flags.Lookup("timeslice"))
	config.BindFlag("capture.upload_timeout", flags.Lookup("upload-timeout"))
	config.BindFlag("capture.screen.source", flags.Lookup("screen-source"))
	config.BindFlag("capture.screen.input", flags.Lookup("screen-input"))
	config.BindFlag("capture.screen.adb_serial", flags.Lookup("adb-serial"))
	config.BindFlag("capture.audio.device", flags.Lookup("audio-device"))
	config.BindFlag("surface.browser_command", flags.Lookup("browser-command"))

	cmd.RegisterFlagCompletionFunc("screen-source", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"ffmpeg", "adb"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCapture(cmd *cobra.Command, opts *CaptureOptions, args []string) error {
	if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
		return fmt.Errorf("invalid output format %q, must be json or text", opts.OutputFormat)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := api.NewFromConfig()
	if err != nil {
		return errors.Wrap(err, "failed to initialize API client")
	}

	sessionID, err := resolveSessionID(ctx, cmd.OutOrStdout(), client, opts.NewSession, args)
	if err != nil {
		return err
	}

	settings := config.GetCaptureSettings()
	out := cmd.OutOrStdout()
	text := opts.OutputFormat == "text"
	logger := util.ComponentLogger("cli")

	cb := capture.Callbacks{
		OnStateChange: func(id string, from, to capture.State) {
			logger.Debug("Capture state changed", "session_id", id, "from", from, "to", to)
			if text && to == capture.StateUploading {
				fmt.Fprintln(out, color.New(color.FgCyan).Sprint("Uploading capture..."))
			}
		},
		OnDegraded: func(ev capture.DegradedEvent) {
			printDegraded(out, ev)
		},
	}
	if text {
		cb.OnTranscript = func(transcript string) {
			fmt.Fprintf(out, "%s %s\n", color.CyanString("Transcript:"), transcript)
		}
		cb.OnScreenSummary = func(summary string) {
			fmt.Fprintf(out, "%s %s\n", color.CyanString("Screen:"), summary)
		}
	}

	deps, err := captureDeps(settings, client, opts.NoSurface)
	if err != nil {
		return err
	}
	ctrl := capture.NewController(deps, capture.Config{
		MaxDuration:   settings.MaxDuration,
		UploadTimeout: settings.UploadTimeout,
	}, cb)

	if opts.ImagePath != "" {
		f, err := (&frame.Extractor{MaxWidth: config.GetFrameMaxWidth()}).FromFile(opts.ImagePath)
		if err != nil {
			return err
		}
		res, err := ctrl.SubmitImage(ctx, sessionID, f)
		if err != nil {
			return err
		}
		return printCaptureResult(out, res, opts.OutputFormat)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	var lines <-chan string
	if interactive {
		lines = readLines(os.Stdin)
	}

	if text {
		fmt.Fprintf(out, "Acquiring microphone and screen for session %s...\n", sessionID)
	}
	if err := ctrl.Start(ctx, sessionID); err != nil {
		return errors.Wrap(err, "failed to start capture")
	}

	if text {
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("●"), "Recording.")
		if interactive {
			fmt.Fprintln(out, "Press Enter to stop, Ctrl+C to cancel.")
		} else {
			fmt.Fprintln(out, "Use the control window to stop, Ctrl+C to cancel.")
		}
	}

	done := ctrl.Done()
	for waiting := true; waiting; {
		select {
		case _, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			ctrl.Stop()
		case <-done:
			waiting = false
		}
	}

	res, err := ctrl.Wait(context.Background())
	if err != nil {
		var uploadErr *capture.UploadError
		if !interactive || ctx.Err() != nil || !errors.As(err, &uploadErr) || errors.Is(err, capture.ErrCancelledByUser) {
			return err
		}
		if res, err = retryUpload(ctx, out, lines, ctrl, sessionID, uploadErr); err != nil {
			return err
		}
	}
	return printCaptureResult(out, res, opts.OutputFormat)
}

// resolveSessionID validates the given session id or creates a new session.
func resolveSessionID(ctx context.Context, out io.Writer, client *api.Client, create bool, args []string) (string, error) {
	if len(args) == 1 {
		if create {
			return "", fmt.Errorf("either a session id or --new can be given, not both")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return "", errors.Wrapf(err, "invalid session id %q", args[0])
		}
		return id.String(), nil
	}
	if !create {
		return "", fmt.Errorf("a session id is required, or pass --new to create one")
	}

	sess, err := client.StartSession(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to create session")
	}
	fmt.Fprintf(out, "Created session %s\n", color.CyanString(sess.ID))
	return sess.ID, nil
}

func captureDeps(settings config.CaptureSettings, client *api.Client, noSurface bool) (capture.Deps, error) {
	screen, err := newScreenSource(settings)
	if err != nil {
		return capture.Deps{}, err
	}
	audio := &media.FFmpegAudioSource{
		FFmpegPath: settings.FFmpegPath,
		Format:     settings.Audio.Format,
		Device:     settings.Audio.Device,
		Channels:   settings.Audio.Channels,
		Bitrate:    settings.Audio.Bitrate,
	}

	deps := capture.Deps{
		Acquirer: media.NewAcquirer(audio, screen, settings.AcquireTimeout),
		NewRecorder: func(stream media.AudioStream, onData func([]byte)) capture.Recorder {
			return recorder.New(stream, recorder.Options{Timeslice: settings.Timeslice}, onData)
		},
		Extractor: &frame.Extractor{MaxWidth: config.GetFrameMaxWidth()},
		Uploader:  client,
	}

	if config.IsSurfaceEnabled() && !noSurface {
		opener := surface.NewOpener(surface.Options{BrowserCommand: config.GetBrowserCommand()})
		deps.Surface = capture.SurfaceOpenerFunc(func(ctx context.Context, sessionID string, preview surface.PreviewSource) (capture.Surface, error) {
			h, err := opener.Open(ctx, sessionID, preview)
			if err != nil {
				return nil, err
			}
			return h, nil
		})
	}
	return deps, nil
}

func newScreenSource(settings config.CaptureSettings) (media.ScreenSource, error) {
	switch settings.Screen.Source {
	case "", "ffmpeg":
		return &media.FFmpegScreenSource{
			FFmpegPath: settings.FFmpegPath,
			Format:     settings.Screen.Format,
			Input:      settings.Screen.Input,
			FPS:        settings.Screen.FPS,
		}, nil
	case "adb":
		return &media.ADBScreenSource{
			Serial:   settings.Screen.ADBSerial,
			Interval: settings.Screen.ADBInterval,
		}, nil
	default:
		return nil, fmt.Errorf("unknown screen source %q, must be ffmpeg or adb", settings.Screen.Source)
	}
}

// readLines forwards stdin line by line. The channel is closed on EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// retryUpload asks whether a failed upload should be retried until it
// succeeds or the user declines.
func retryUpload(ctx context.Context, out io.Writer, lines <-chan string, ctrl *capture.Controller, sessionID string, uploadErr *capture.UploadError) (*capture.Result, error) {
	for {
		fmt.Fprintf(out, "%s %v\n", color.RedString("Upload failed:"), uploadErr.Err)
		fmt.Fprint(out, "Retry? [Y/n] ")

		var answer string
		select {
		case line, ok := <-lines:
			if !ok {
				return nil, uploadErr
			}
			answer = strings.ToLower(strings.TrimSpace(line))
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil, uploadErr
		}
		if answer == "n" || answer == "no" {
			return nil, uploadErr
		}

		res, err := ctrl.RetryUpload(ctx, sessionID, uploadErr.Artifact)
		if err == nil {
			return res, nil
		}
		if !errors.As(err, &uploadErr) || errors.Is(err, capture.ErrCancelledByUser) {
			return nil, err
		}
	}
}

func printDegraded(out io.Writer, ev capture.DegradedEvent) {
	warn := color.New(color.FgYellow).Sprint("Control window unavailable:")
	if ev.URL != "" {
		fmt.Fprintf(out, "%s %v\nOpen %s to stop from the browser, or press Enter here.\n", warn, ev.Err, ev.URL)
		return
	}
	fmt.Fprintf(out, "%s %v\nPress Enter here to stop recording.\n", warn, ev.Err)
}

type captureOutput struct {
	SessionID     string `json:"session_id"`
	Transcript    string `json:"transcript"`
	ScreenSummary string `json:"screen_summary"`
	AudioBytes    int    `json:"audio_bytes"`
	FrameWidth    int    `json:"frame_width"`
	FrameHeight   int    `json:"frame_height"`
}

func printCaptureResult(out io.Writer, res *capture.Result, format string) error {
	o := captureOutput{
		SessionID:     res.SessionID,
		Transcript:    res.Transcript,
		ScreenSummary: res.ScreenSummary,
	}
	if a := res.Artifact; a != nil {
		o.AudioBytes = len(a.Audio)
		o.FrameWidth = a.Width
		o.FrameHeight = a.Height
	}

	if format == "json" {
		data, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode result")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if o.Transcript == "" && o.ScreenSummary == "" {
		fmt.Fprintln(out, "The backend returned no transcript or screen summary.")
	}
	fmt.Fprintf(out, "%s session %s (%d bytes of audio, %dx%d frame)\n",
		color.GreenString("Captured"), o.SessionID, o.AudioBytes, o.FrameWidth, o.FrameHeight)
	return nil
}
