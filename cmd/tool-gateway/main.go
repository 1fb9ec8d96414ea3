// ABOUTME: Entry point for tool-gateway: MCP tool server with conversation memory
// ABOUTME: Provides serve, tools, memory, and version commands

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/tool-gateway/internal/config"
	"github.com/2389/tool-gateway/internal/gateway"
	"github.com/2389/tool-gateway/internal/memory"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _              _                    _
| |_ ___   ___ | |       __ _  __ _ | |_ _____      ____ _ _   _
| __/ _ \ / _ \| |_____ / _' |/ _' || __/ _ \ \ /\ / / _' | | | |
| || (_) | (_) | |_____| (_| | (_| || ||  __/\ V  V / (_| | |_| |
 \__\___/ \___/|_|      \__, |\__,_| \__\___| \_/\_/ \__,_|\__, |
                        |___/                              |___/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds flags shared by every command.
type cliOptions struct {
	configPath string
}

// loadConfig loads the --config file, or the discovered one when unset.
func (o *cliOptions) loadConfig() (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = config.Find()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "tool-gateway",
		Short:         "MCP tool gateway with conversation memory",
		Long:          "tool-gateway exposes filesystem, terminal, browser, system, and utility tools over MCP and records every call in a SQLite conversation log.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: $"+config.ConfigEnvVar+" or ./config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newToolsCmd(opts),
		newMemoryCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runServe(ctx context.Context, opts *cliOptions, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, configPath, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = "(defaults)"
	}

	logger := setupLogger(cfg.Logging, out)

	green := color.New(color.FgGreen)
	printInfo := func(label, value string) {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "%-11s%s\n", label+":", value)
	}
	printInfo("Config", configPath)
	printInfo("MCP", "http://"+cfg.Server.Addr()+cfg.Server.Path)
	printInfo("Workspace", cfg.Workspace.Root)
	printInfo("Memory", cfg.Memory.Path)
	printInfo("Tools", fmt.Sprint(cfg.Tools.Capabilities))
	fmt.Fprintln(out)

	gw, err := gateway.New(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func newToolsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the configured gateway exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			gw, err := gateway.New(cfg, setupLogger(config.LoggingConfig{Level: "error"}, io.Discard), version)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			defer func() { _ = gw.Shutdown(context.WithoutCancel(cmd.Context())) }()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCAPABILITY\tTIMEOUT")
			for _, def := range gw.Tools() {
				timeout := "-"
				if def.TimeoutSeconds > 0 {
					timeout = fmt.Sprintf("%ds", def.TimeoutSeconds)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, def.GetRequiredCapabilities()[0], timeout)
			}
			return tw.Flush()
		},
	}
}

func newMemoryCmd(opts *cliOptions) *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clear the conversation log",
	}

	// withStore opens the configured memory database for one command.
	withStore := func(fn func(*cobra.Command, memory.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := memory.NewSQLiteStore(cfg.Memory.Path)
			if err != nil {
				return fmt.Errorf("opening memory: %w", err)
			}
			defer store.Close()
			return fn(cmd, store)
		}
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tool usage per category",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store memory.Store) error {
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "no tool calls recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tCALLS")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\n", s.Category, s.Count)
			}
			return tw.Flush()
		}),
	}

	var format string
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Render the conversation log",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if format != "md" && format != "html" {
				return fmt.Errorf(`--format must be "md" or "html", got %q`, format)
			}
			return nil
		},
		RunE: withStore(func(cmd *cobra.Command, store memory.Store) error {
			entries, err := store.All(cmd.Context())
			if err != nil {
				return err
			}
			text := memory.RenderMarkdown(entries)
			if format == "html" {
				if text, err = memory.RenderHTML(entries); err != nil {
					return err
				}
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		}),
	}
	transcriptCmd.Flags().StringVarP(&format, "format", "f", "md", "output format: md or html")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every entry",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store memory.Store) error {
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "memory cleared")
			return nil
		}),
	}

	memoryCmd.AddCommand(statsCmd, transcriptCmd, clearCmd)
	return memoryCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tool-gateway %s\n", version)
		},
	}
}
