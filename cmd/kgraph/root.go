package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/config"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/pkg/knowledge"
)

type rootOptions struct {
	configFile string
	libsqlURL  string
	output     string
}

// app is the per-invocation state shared by subcommands.
type app struct {
	opts *rootOptions
	cfg  *config.Config
	log  *zap.Logger
}

// newRootCommand builds the command tree. It is a constructor rather than
// a package-level var so tests get fresh flag state.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "kgraph",
		Short: "Adaptive personal knowledge graph",
		Long: `kgraph ingests notes into a libSQL-backed knowledge graph, resolves the
entities they mention, links related nodes, and answers questions by
traversing the graph. Edge weights and the type schema adapt with use.

Configuration comes from the environment (see .env.example) with graph
tunables optionally overlaid from a YAML file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML file of graph tunables (overrides KG_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.libsqlURL, "libsql-url", "", "libSQL database URL (overrides LIBSQL_URL)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json, yaml)")

	root.AddCommand(
		newServeCommand(a),
		newIngestCommand(a),
		newQueryCommand(a),
		newStateCommand(a),
		newAdaptationsCommand(a),
		newTypesCommand(a),
		newMergeCommand(a),
		newClearCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.opts.configFile)
	if err != nil {
		return err
	}
	if a.opts.libsqlURL != "" {
		cfg.Database.URL = a.opts.libsqlURL
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// withService opens the service for the duration of fn.
func (a *app) withService(ctx context.Context, fn func(*knowledge.Service) error) error {
	svc, err := knowledge.Open(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			a.log.Warn("error closing database", zap.Error(cerr))
		}
	}()
	return fn(svc)
}

// render writes v in the selected format; text falls back to the
// provided formatter.
func (a *app) render(w io.Writer, v any, text func(io.Writer) error) error {
	switch a.opts.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text", "":
		return text(w)
	default:
		return fmt.Errorf("unknown output format %q (expected text, json or yaml)", a.opts.output)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip configuration loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "kgraph", buildinfo.Get())
		},
	}
}
