package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/netsim/datarecording"
	"github.com/sarchlab/netsim/tracing"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [database]",
	Short: "Summarize a recorded trace.",
	Long: "`report [database]` reads the SQLite database written by " +
		"`run --trace` and prints the number of packet events by kind and " +
		"the hops and busy time of every channel.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		packetID, _ := cmd.Flags().GetString("packet")

		r := tracing.NewReader(datarecording.NewReader(args[0]))
		defer r.Close()

		if packetID != "" {
			return printPacket(cmd, r, packetID)
		}

		summary, err := r.Summarize(cmd.Context())
		if err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), summary)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("packet", "",
		"Print the events of this packet instead of the summary.")
}

func printSummary(w io.Writer, s tracing.Summary) {
	fmt.Fprintf(w, "nodes: %d\n", s.Nodes)

	kinds := make([]string, 0, len(s.Events))
	for kind := range s.Events {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Fprintln(w, "events:")
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-10s %d\n", kind, s.Events[kind])
	}

	fmt.Fprintln(w, "channels:")
	for _, c := range s.Channels {
		fmt.Fprintf(w, "  %-12s hops %-6d busy %.9fs\n",
			c.Channel, c.Hops, c.BusyTime)
	}
}

func printPacket(cmd *cobra.Command, r *tracing.Reader, id string) error {
	events, err := r.PacketEvents(cmd.Context(), id)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return fmt.Errorf("packet %s not found", id)
	}

	w := cmd.OutOrStdout()
	for _, e := range events {
		fmt.Fprintf(w, "%.9f %-10s %-14s %s\n", e.Time, e.Event, e.Where, e.Detail)
	}

	return nil
}
