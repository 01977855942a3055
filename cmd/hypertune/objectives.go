package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hypertune/bench"
)

var objectivesCmd = &cobra.Command{
	Use:   "objectives",
	Short: "List the built-in benchmark objectives",
	Run:   listObjectives,
}

func init() {
	rootCmd.AddCommand(objectivesCmd)
}

func listObjectives(cmd *cobra.Command, args []string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDOMAIN\tDESCRIPTION")
	fmt.Fprintln(w, "----\t------\t-----------")
	for _, b := range bench.All() {
		fmt.Fprintf(w, "%s\t[%g, %g]\t%s\n", b.Name, b.Low, b.High, b.Desc)
	}
	w.Flush()
}
