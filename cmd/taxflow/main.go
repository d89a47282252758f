package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/levyline/taxflow"
	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/internal/mcp"
	"github.com/levyline/taxflow/internal/store"
	"github.com/levyline/taxflow/pkg/api"
)

type rootFlags struct {
	definitions string
	properties  string
	logLevel    string
}

var (
	ErrInvalidInput   = errors.New("invalid workflow input")
	ErrWorkflowFailed = errors.New("workflow execution failed")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           app.Name,
		Short:         "Property-tax function and workflow execution engine",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.definitions, "definitions", "",
		"directory of workflow and function definitions")
	pf.StringVar(&flags.properties, "properties", "",
		"property and valuation fixture file")
	pf.StringVar(&flags.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newMCPCmd(flags),
		newRunCmd(flags),
		newValidateCmd(),
	)
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.prepare(cmd.Context(), os.Stdout)
			if err != nil {
				return err
			}
			s.startServer()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			<-ctx.Done()

			s.shutdown()
			return nil
		},
	}
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol, so logs go to stderr
			s, err := flags.prepare(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			err = mcp.NewServer(s.engine).Serve(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := api.Args{}
			if input != "" {
				if err := json.Unmarshal([]byte(input), &in); err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidInput, err)
				}
			}

			s, err := flags.prepare(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			res := s.engine.RunWorkflow(cmd.Context(), &api.WorkflowRequest{
				WorkflowName: api.WorkflowName(args[0]),
				Input:        in,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Status != api.StatusCompleted {
				return fmt.Errorf("%w: %s", ErrWorkflowFailed, res.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "",
		"workflow input as a JSON object")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check definition files and directories without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewDefaultConfig()
			s := newTaxflow(cfg)
			if err := s.initializeStores(cmd.Context()); err != nil {
				return err
			}
			if err := s.initializeEngine(); err != nil {
				s.close()
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			for _, path := range args {
				defs, err := loadDefinitions(path)
				if err != nil {
					return err
				}
				for _, def := range defs.Functions {
					fn, err := s.builder.Build(def)
					if err != nil {
						return fmt.Errorf("%s: %w: %w",
							path, ErrBuildFunction, err)
					}
					s.engine.RegisterFunction(def.Name, fn)
				}
				for _, def := range defs.Workflows {
					if err := s.engine.ReplaceWorkflow(def); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
				fmt.Fprintf(out, "%s: %d functions, %d workflows\n",
					path, len(defs.Functions), len(defs.Workflows))
			}
			return nil
		},
	}
}

func (f *rootFlags) prepare(
	ctx context.Context, logTo io.Writer,
) (*taxflow, error) {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if f.definitions != "" {
		cfg.DefinitionsDir = f.definitions
	}
	if f.properties != "" {
		cfg.PropertyDataFile = f.properties
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newTaxflow(cfg)
	s.setupLogging(logTo)
	if err := s.initialize(ctx); err != nil {
		slog.Error("Failed to initialize", slog.Any("error", err))
		return nil, err
	}
	return s, nil
}

func loadDefinitions(path string) (*store.Definitions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return store.LoadDefinitionsDir(path)
	}
	return store.LoadDefinitionsFile(path)
}

func signalContext(
	parent context.Context,
) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
