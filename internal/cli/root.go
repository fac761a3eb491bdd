// Package cli holds the leaf-check commands.
package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/example/leaf-check/internal/tui"
)

type rootOptions struct {
	configPath string
	apiURL     string
	logLevel   string
}

// NewRootCmd builds the command tree. Without a subcommand it starts the
// interactive uploader.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "leaf-check",
		Short: "Potato leaf disease prediction client",
		Long: "Select or drop a potato leaf image and get the predicted disease label and confidence " +
			"from a remote prediction endpoint.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to a YAML config file (default $HOME/.config/leaf-check/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "",
		"Prediction endpoint base URL or full /predict URL")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")

	cmd.AddCommand(newPredictCmd(opts))
	cmd.AddCommand(newStubCmd(opts))
	return cmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func runInteractive(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	program := tea.NewProgram(tui.New(a.controller, cwd), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run uploader: %w", err)
	}
	return nil
}
