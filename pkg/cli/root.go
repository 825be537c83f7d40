// Package cli wires the chatstack commands: install, hardware, models,
// status and version.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jguan/chatstack/pkg/config"
	"github.com/jguan/chatstack/pkg/infra/logger"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

// SetVersion injects build metadata from main.
func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

type RootCommand struct {
	cmd       *cobra.Command
	cfg       *config.Config
	opts      *OutputOptions
	formatStr string
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		opts: NewOutputOptions(),
	}

	cmd := &cobra.Command{
		Use:   "chatstack",
		Short: "ChatStack - single-host AI chat stack provisioner",
		Long: `ChatStack provisions a three-service AI chat stack (nginx reverse
proxy, Open WebUI, Ollama) on a single host with Docker Compose.

It profiles the host hardware, recommends model sizes, generates the
reverse-proxy and compose configuration for HTTP (simple) or HTTPS
(advanced) mode, and upgrades existing installations in place without
touching persisted data.`,
		PersistentPreRunE: root.persistentPreRunE,
		SilenceUsage:      true,
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVarP(&root.formatStr, "output", "o", "table", "Output format (table, json, yaml)")
	pflags.BoolVarP(&root.opts.Quiet, "quiet", "q", false, "Suppress output")
	pflags.String("config", "", "Config file path (TOML)")

	viper.BindPFlag("output", pflags.Lookup("output"))
	viper.BindPFlag("quiet", pflags.Lookup("quiet"))
	viper.BindPFlag("config", pflags.Lookup("config"))

	root.cmd = cmd

	root.addSubCommands()

	return root
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	r.opts.Format = OutputFormat(r.formatStr)

	cfgPath := viper.GetString("config")
	var err error
	r.cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Level:  r.cfg.Logging.Level,
		Format: r.cfg.Logging.Format,
	})

	return nil
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewInstallCommand(r))
	r.cmd.AddCommand(NewHardwareCommand(r))
	r.cmd.AddCommand(NewModelsCommand(r))
	r.cmd.AddCommand(NewStatusCommand(r))
	r.cmd.AddCommand(NewVersionCommand(r))
}

// Command returns the underlying cobra command, primarily for tests.
func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	root := NewRootCommand()
	if err := root.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
