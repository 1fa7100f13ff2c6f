package main

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"srdash/core"
	"srdash/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and maps the outcome to an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCodeFor(err)
	}
	return core.ExitCodeSuccess
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	envFile    string
	configFile string
	devMode    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "srdash",
		Short:         "SRGAN pipeline dashboard",
		Long:          "srdash serves a dashboard of simulated SRGAN training and inference runs\nand forwards real enhancement requests to a super-resolution backend.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "environment file to load")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file layered over the environment")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", false, "development mode (debug logging, colored console)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newSimulateCmd(opts))
	root.AddCommand(newEnhanceCmd(opts))
	root.AddCommand(newHealthCmd(opts))
	root.AddCommand(newPipelinesCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newServiceCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads the .env file, the environment and the optional YAML
// file, in that order. A missing .env file is fine.
func (o *rootOptions) loadConfig() (*core.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrConfigFileInvalid(o.envFile, err.Error())
		}
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg, err = core.LoadConfigFile(o.configFile, cfg)
	if err != nil {
		return nil, err
	}
	if o.devMode {
		cfg.DevMode = true
	}
	return cfg, nil
}

func newLogger(cfg *core.Config) (*logging.Logger, error) {
	def := zapcore.InfoLevel
	if cfg.DevMode {
		def = zapcore.DebugLevel
	}
	return logging.NewLoggerWithLevel(logging.ParseLogLevelString(cfg.LogLevel, def), cfg.DevMode, cfg.LogFile)
}
