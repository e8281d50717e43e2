package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/terralens/landcover-cli/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect classification threshold profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		profiles, err := initProfiles()
		if err != nil {
			return err
		}

		fmt.Println("default")
		for _, name := range profiles.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a profile's thresholds",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := initProfiles()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 && args[0] != "default" {
			name = args[0]
		}
		thresholds, err := profiles.Get(name)
		if err != nil {
			return err
		}

		formatThresholds(os.Stdout, thresholds)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}

func formatThresholds(out io.Writer, t profile.Thresholds) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Water (NDWI >):\t%.3f\n", t.Water)
	_, _ = fmt.Fprintf(w, "Forest (NDVI >):\t%.3f\n", t.Forest)
	_, _ = fmt.Fprintf(w, "Agriculture (NDVI >):\t%.3f\n", t.Agriculture)
	_, _ = fmt.Fprintf(w, "Built-up (NDBI >):\t%.3f\n", t.BuiltUp)
	_ = w.Flush()
}
