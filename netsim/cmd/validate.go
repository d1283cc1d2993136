package cmd

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/simulation"
	"github.com/sarchlab/netsim/topology"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]...",
	Short: "Check topology descriptions.",
	Long: "`validate [file]...` checks that every description refers to " +
		"declared nodes and channels and that the described network can " +
		"be built.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var errs []error

		for _, filename := range args {
			err := validateFile(filename)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filename, err))
				continue
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", filename)
		}

		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateFile(filename string) (err error) {
	desc, err := topology.ReadDescription(filename, nil)
	if err != nil {
		return err
	}

	s := simulation.MakeBuilder().
		WithoutMonitoring().
		WithoutRecording().
		Build()
	defer func() {
		err = errors.Join(err, s.Terminate())
	}()

	if _, err := topology.Build(s, desc); err != nil {
		return err
	}

	return s.Validate()
}
