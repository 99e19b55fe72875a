// Command crewplanner designs multi-agent crews for a task.
//
// Usage:
//
//	crewplanner plan --task "Route support tickets" --budget 2
//	crewplanner plan --file run.yaml --output yaml
//	crewplanner serve --config crewplanner.yaml
//	crewplanner show <run-id>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "crewplanner",
		Short:         "Design multi-agent crews through analysis, planning, implementation and evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CREWPLANNER_CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newPlanCmd(opts),
		newServeCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newVersionCmd(),
	)
	return root
}
