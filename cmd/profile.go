package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faiz-k/Intentify/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage configuration profiles",
	Long:  `Manage the backends the CLI talks to. Each profile stores a base URL and an optional API key.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := profile.Default()
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "json" {
			fmt.Fprintln(cmd.OutOrStdout(), pm.ListJSON())
			return nil
		}

		entries := pm.List()
		rows := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			current := ""
			if e.Current {
				current = "*"
			}
			rows = append(rows, map[string]interface{}{
				"current":  current,
				"id":       e.ID,
				"base_url": e.BaseURL,
				"key":      e.Key,
			})
		}
		renderTable(cmd.OutOrStdout(), []TableColumn{
			{Header: "CURRENT", Key: "current"},
			{Header: "NAME", Key: "id"},
			{Header: "BASE URL", Key: "base_url"},
			{Header: "API KEY", Key: "key"},
		}, rows)
		return nil
	},
}

// addManually prompts for the values that were not given as flags.
func addManually(pm *profile.ProfileManager, name, key, baseURL string) error {
	reader := bufio.NewReader(os.Stdin)

	if name == "" {
		fmt.Print("Please enter profile name: ")
		line, _ := reader.ReadString('\n')
		name = strings.TrimSpace(line)
		if name == "" {
			return fmt.Errorf("Profile name cannot be empty")
		}
	} else {
		fmt.Printf("Profile name: %s\n", name)
	}

	if key == "" {
		fmt.Print("Please enter API key (optional): ")
		line, _ := reader.ReadString('\n')
		key = strings.TrimSpace(line)
	}

	if baseURL == "" {
		fmt.Print("Please enter base URL (optional, default is the configured endpoint): ")
		line, _ := reader.ReadString('\n')
		baseURL = strings.TrimSpace(line)
	}

	if err := pm.Add(name, key, baseURL); err != nil {
		return err
	}

	fmt.Println("Profile added successfully")
	return nil
}

var profileAddCmd = &cobra.Command{
	Use:   "add [--name|-n NAME] [--key|-k KEY] [--base-url|-u URL]",
	Short: "Add a profile",
	Long: `Add a profile by providing a name and, optionally, an API key and backend base URL. You can either pass them through command-line flags or enter them interactively.

Examples:
  intentify profile add --name local                                      # Local backend, no key
  intentify profile add --name prod --key xxx --base-url https://api.example.com
  intentify profile add                                                   # Fully interactive mode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := profile.Default()
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		key, _ := cmd.Flags().GetString("key")
		baseURL, _ := cmd.Flags().GetString("base-url")

		if name == "" {
			return addManually(pm, name, key, baseURL)
		}

		if err := pm.Add(name, key, baseURL); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Profile added successfully")
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := profile.Default()
		if err != nil {
			return err
		}

		if err := pm.Use(args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete specified profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := profile.Default()
		if err != nil {
			return err
		}

		if err := pm.Remove(args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Profile %s deleted\n", args[0])
		return nil
	},
}

var profileCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show current profile information",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := profile.Default()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		current := pm.GetCurrent()
		if current == nil {
			fmt.Fprintln(out, "No current profile set")
			return nil
		}

		fmt.Fprintln(out, "Current Profile:")
		fmt.Fprintf(out, "  Profile Name: %s\n", pm.GetCurrentProfileID())
		fmt.Fprintf(out, "  Base URL: %s\n", pm.GetEffectiveBaseURL())
		fmt.Fprintf(out, "  API Key: %s\n", profile.GetMaskedAPIKey(current.APIKey))
		return nil
	},
}

func init() {
	profileListCmd.Flags().StringP("output", "o", "text", "Output format (json or text)")

	profileAddCmd.Flags().StringP("name", "n", "", "Profile name")
	profileAddCmd.Flags().StringP("key", "k", "", "API key (optional)")
	profileAddCmd.Flags().StringP("base-url", "u", "", "Backend base URL (optional)")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileCurrentCmd)
	rootCmd.AddCommand(profileCmd)
}
