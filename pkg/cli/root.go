// Package cli implements the codeqa command tree.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"codeqa/pkg/config"
	"codeqa/pkg/logx"
	"codeqa/pkg/version"
)

// SecretsPasswordEnv supplies the secrets password without a prompt.
const SecretsPasswordEnv = "CODEQA_SECRETS_PASSWORD"

// app holds state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	stdin   *bufio.Reader
	logger  *logx.Logger
	cfgFile string
}

// NewRootCommand builds the codeqa command tree.
func NewRootCommand() *cobra.Command {
	a := &app{
		v:      config.NewViper(),
		logger: logx.NewLogger("cli"),
	}

	root := &cobra.Command{
		Use:           "codeqa",
		Short:         "codeqa answers questions about a live-indexed codebase",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./codeqa.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("provider", "", "LLM provider (google, openai, anthropic, ollama)")
	flags.String("model", "", "LLM model name")
	flags.String("index-url", "", "base URL of the Pathway-compatible index")
	flags.String("index-backend", "", "index backend (pathway or local)")

	// Flags override env, which overrides the config file.
	_ = a.v.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = a.v.BindPFlag("llm.model", flags.Lookup("model"))
	_ = a.v.BindPFlag("index.url", flags.Lookup("index-url"))
	_ = a.v.BindPFlag("index.backend", flags.Lookup("index-backend"))

	root.AddCommand(
		a.newServeCommand(),
		a.newIndexCommand(),
		a.newAskCommand(),
		a.newChatCommand(),
		a.newConfigCommand(),
		a.newSecretsCommand(),
		a.newStatsCommand(),
		a.newToolsCommand(),
		newVersionCommand(),
	)
	return root
}

// load materializes the merged configuration for the running command.
func (a *app) load(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if debug, _ := flags.GetBool("debug"); debug {
		logx.SetDebug(true)
	}
	if !isTerminal(cmd.OutOrStdout()) {
		color.NoColor = true
	}

	// A model given alone implies its provider.
	if flags.Changed("model") && !flags.Changed("provider") {
		model, _ := flags.GetString("model")
		if provider := config.ProviderForModel(model); provider != "" {
			a.v.Set("llm.provider", provider)
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// loadSecrets decrypts the secrets file into memory when one exists. The
// password comes from the environment or an interactive prompt.
func (a *app) loadSecrets(cmd *cobra.Command) error {
	if !config.SecretsFileExists(a.cfg.SecretsDir) {
		return nil
	}
	password := os.Getenv(SecretsPasswordEnv)
	if password == "" {
		if !isTerminal(cmd.InOrStdin()) {
			a.logger.Warn("secrets file present but %s is not set; using environment keys only", SecretsPasswordEnv)
			return nil
		}
		var err error
		password, err = a.prompt(cmd, "Secrets password: ", true)
		if err != nil {
			return err
		}
	}
	secrets, err := config.DecryptSecretsFile(a.cfg.SecretsDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	a.logger.Info("loaded %d secrets from %s", len(secrets), config.SecretsPath(a.cfg.SecretsDir))
	return nil
}

// prompt reads one line. Hidden input is read without echo on a terminal.
func (a *app) prompt(cmd *cobra.Command, label string, hidden bool) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && hidden && term.IsTerminal(int(f.Fd())) {
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(value), nil
	}

	if a.stdin == nil {
		a.stdin = bufio.NewReader(in)
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return 1
	}
	return 0
}
