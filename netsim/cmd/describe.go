package cmd

import (
	"fmt"

	"github.com/sarchlab/netsim/topology"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the built-in city scenario.",
	Long: "`describe` prints the description of the built-in city " +
		"scenario. The output can be edited and passed to `run --topology`.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		desc := topology.City()

		if output != "" {
			return desc.WriteToFile(output)
		}

		var asJSON bool
		switch format {
		case "yaml":
		case "json":
			asJSON = true
		default:
			return fmt.Errorf("unknown format %q", format)
		}

		bytes, err := desc.Encode(asJSON)
		if err != nil {
			return err
		}

		_, err = cmd.OutOrStdout().Write(bytes)

		return err
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().String("format", "yaml", "Output format: yaml or json.")
	describeCmd.Flags().String("output", "",
		"Write to this file instead of stdout. The extension selects the format.")
}
