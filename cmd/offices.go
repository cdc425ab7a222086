package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var officesCmd = &cobra.Command{
	Use:   "offices",
	Short: "List the active offices and categories of the directory",
	Example: `  dragonfly offices
  dragonfly offices --json`,
	Args: cobra.NoArgs,
	RunE: runOffices,
}

func init() {
	rootCmd.AddCommand(officesCmd)

	officesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runOffices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := loadDirectory(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"offices":    dir.Offices(),
			"categories": dir.Categories(),
		})
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFICE\tCODE\tNAME")
	for _, o := range dir.Offices() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.Code, o.Name)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CATEGORY\tNAME")
	for _, c := range dir.Categories() {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Name)
	}
	return tw.Flush()
}
