package cli

import (
	stdcontext "context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/config"
	"github.com/Paintersrp/prefork/internal/logging"
)

const defaultConfigFile = "prefork.yaml"

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var configFile string

	root := &cobra.Command{
		Use:   "prefork",
		Short: "Serve HTTP from a pool of pre-forked worker processes",
	}

	root.PersistentFlags().
		StringVarP(&configFile, "file", "f", defaultConfigFile, "Path to prefork configuration")

	ctx := &context{configFile: &configFile}
	root.AddCommand(newServeCmd(ctx))
	root.AddCommand(newWorkerCmd(ctx))
	root.AddCommand(newWorkersCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. Shutdown signals are handled by the
// commands that need them.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	configFile *string
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist.
func (c *context) loadConfig() (*config.Config, error) {
	cfg, _, err := config.LoadOptional(c.path())
	return cfg, err
}

func (c *context) path() string {
	if c.configFile == nil || *c.configFile == "" {
		return defaultConfigFile
	}
	return *c.configFile
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, cmd.ErrOrStderr())
}
