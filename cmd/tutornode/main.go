// Package main provides the CLI that runs the pipeline-side tutorbridge nodes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/tutorbridge/internal/recorder"
)

// Version information (set at build time)
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tutornode",
		Short: "Run tutorbridge session nodes in a dataflow pipeline",
		Long: `tutornode registers the session controller, the session context manager
and the transcript recorder with a dataflow pipeline.

Use 'tutornode [command] --help' for more information.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.tutorbridge/config.yaml)")

	nodeCmd := func(use, short string, nodes ...nodeKind) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := setup(configPath)
				if err != nil {
					return err
				}
				defer rt.close()
				return rt.run(cmd.Context(), nodes...)
			},
		}
	}

	rootCmd.AddCommand(
		nodeCmd("controller", "Run the session controller node", nodeController),
		nodeCmd("context", "Run the session context manager node", nodeContext),
		nodeCmd("recorder", "Run the transcript recorder node", nodeRecorder),
		nodeCmd("all", "Run every session node in one process", nodeController, nodeContext, nodeRecorder),
		newTranscriptCmd(&configPath),
	)
	return rootCmd
}

// newTranscriptCmd prints what the recorder stored for one session.
func newTranscriptCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript [session-id]",
		Short: "Print a recorded session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			store, err := recorder.NewSQLiteStore(rt.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			return printTranscript(cmd.Context(), cmd.OutOrStdout(), store, args[0])
		},
	}
}
