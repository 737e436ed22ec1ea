package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"corebridge/process-service/internal/process"
)

var stagesJSON bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the stage graph",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printStages(cmd.OutOrStdout(), stagesJSON)
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(stagesCmd)
}

func printStages(out io.Writer, asJSON bool) error {
	stages := process.AllStages()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stages)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tLABEL\tOUTCOME\tNEXT")
	for _, st := range stages {
		outcome := "-"
		switch {
		case st.Pass:
			outcome = "pass"
		case st.Fail:
			outcome = "fail"
		}
		next := make([]string, len(st.AllowedNext))
		for i, s := range st.AllowedNext {
			next[i] = string(s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Stage, st.Label, outcome, strings.Join(next, ", "))
	}
	return tw.Flush()
}
