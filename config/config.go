package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultAPIURL is used when no flag, environment variable, config file
// entry or profile names a backend.
const DefaultAPIURL = "http://localhost:8003"

var v *viper.Viper

func init() {
	v = viper.New()

	// api.endpoint has no viper default so that an explicit value can be
	// told apart from the fallback, see APIURLOverridden.

	// Set default intentify home directory
	v.SetDefault("intentify.home", filepath.Join(xdg.Home, ".intentify"))

	// The profile path is resolved against intentify.home when accessed
	v.SetDefault("profile.path", "")

	v.SetDefault("capture.ffmpeg_path", "ffmpeg")
	v.SetDefault("capture.audio.format", defaultAudioFormat())
	v.SetDefault("capture.audio.device", defaultAudioDevice())
	v.SetDefault("capture.audio.channels", 1)
	v.SetDefault("capture.audio.bitrate", "64k")
	v.SetDefault("capture.screen.source", "ffmpeg")
	v.SetDefault("capture.screen.format", defaultScreenFormat())
	v.SetDefault("capture.screen.input", defaultScreenInput())
	v.SetDefault("capture.screen.fps", 2)
	v.SetDefault("capture.screen.adb_serial", "")
	v.SetDefault("capture.screen.adb_interval", "1s")
	v.SetDefault("capture.timeslice", "1s")
	v.SetDefault("capture.max_duration", "0s")
	v.SetDefault("capture.acquire_timeout", "30s")
	v.SetDefault("capture.upload_timeout", "2m")

	v.SetDefault("surface.enabled", true)
	v.SetDefault("surface.browser_command", "")

	v.SetDefault("frame.max_width", 0)

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("api.endpoint", "INTENTIFY_API_URL", "API_ENDPOINT")
	v.BindEnv("intentify.home", "INTENTIFY_HOME")
	v.BindEnv("profile.path", "INTENTIFY_PROFILE_PATH")
	v.BindEnv("capture.ffmpeg_path", "INTENTIFY_FFMPEG")
	v.BindEnv("capture.audio.device", "INTENTIFY_AUDIO_DEVICE")
	v.BindEnv("capture.screen.input", "INTENTIFY_SCREEN_INPUT")
	v.BindEnv("surface.browser_command", "INTENTIFY_BROWSER_COMMAND")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		"$HOME/.intentify",
		"/etc/intentify",
	}

	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// BindFlag lets a command line flag override the given configuration key.
func BindFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = v.BindPFlag(key, flag)
}

// Set overrides a configuration value for the running process.
func Set(key string, value interface{}) {
	v.Set(key, value)
}

// GetAPIURL returns the Intentify backend base URL
func GetAPIURL() string {
	if url := v.GetString("api.endpoint"); url != "" {
		return url
	}
	return DefaultAPIURL
}

// APIURLOverridden reports whether the backend URL was given explicitly,
// through --api-url, INTENTIFY_API_URL/API_ENDPOINT, the config file or Set.
// An explicit URL takes precedence over the current profile's base URL.
func APIURLOverridden() bool {
	return v.IsSet("api.endpoint") && v.GetString("api.endpoint") != ""
}

// GetHome returns the intentify home directory
func GetHome() string {
	return v.GetString("intentify.home")
}

// GetProfilePath returns the profile file path
func GetProfilePath() string {
	if profilePath := v.GetString("profile.path"); profilePath != "" {
		return profilePath
	}
	return filepath.Join(GetHome(), "profiles.toml")
}

// AudioSettings describes how the microphone is opened.
type AudioSettings struct {
	Format   string
	Device   string
	Channels int
	Bitrate  string
}

// ScreenSettings describes which screen source is used and how it is polled.
type ScreenSettings struct {
	Source      string
	Format      string
	Input       string
	FPS         int
	ADBSerial   string
	ADBInterval time.Duration
}

// CaptureSettings groups everything the capture command needs.
type CaptureSettings struct {
	FFmpegPath     string
	Audio          AudioSettings
	Screen         ScreenSettings
	Timeslice      time.Duration
	MaxDuration    time.Duration
	AcquireTimeout time.Duration
	UploadTimeout  time.Duration
}

// GetCaptureSettings returns the resolved capture settings.
func GetCaptureSettings() CaptureSettings {
	return CaptureSettings{
		FFmpegPath: v.GetString("capture.ffmpeg_path"),
		Audio: AudioSettings{
			Format:   v.GetString("capture.audio.format"),
			Device:   v.GetString("capture.audio.device"),
			Channels: v.GetInt("capture.audio.channels"),
			Bitrate:  v.GetString("capture.audio.bitrate"),
		},
		Screen: ScreenSettings{
			Source:      v.GetString("capture.screen.source"),
			Format:      v.GetString("capture.screen.format"),
			Input:       v.GetString("capture.screen.input"),
			FPS:         v.GetInt("capture.screen.fps"),
			ADBSerial:   v.GetString("capture.screen.adb_serial"),
			ADBInterval: v.GetDuration("capture.screen.adb_interval"),
		},
		Timeslice:      v.GetDuration("capture.timeslice"),
		MaxDuration:    v.GetDuration("capture.max_duration"),
		AcquireTimeout: v.GetDuration("capture.acquire_timeout"),
		UploadTimeout:  v.GetDuration("capture.upload_timeout"),
	}
}

// IsSurfaceEnabled reports whether the detached control surface should be opened
func IsSurfaceEnabled() bool {
	return v.GetBool("surface.enabled")
}

// GetBrowserCommand returns the command used to open the control surface.
// An empty value means the system browser.
func GetBrowserCommand() string {
	return v.GetString("surface.browser_command")
}

// GetFrameMaxWidth returns the maximum width of the uploaded frame, 0 keeps the source size
func GetFrameMaxWidth() int {
	return v.GetInt("frame.max_width")
}

func defaultAudioFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultAudioDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":0"
	case "windows":
		// dshow needs the real device name, e.g. "audio=Microphone (Realtek Audio)"
		return ""
	default:
		return "default"
	}
}

func defaultScreenFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "gdigrab"
	default:
		return "x11grab"
	}
}

func defaultScreenInput() string {
	switch runtime.GOOS {
	case "darwin":
		return "1:none"
	case "windows":
		return "desktop"
	default:
		if display := os.Getenv("DISPLAY"); display != "" {
			return display
		}
		return ":0.0"
	}
}
