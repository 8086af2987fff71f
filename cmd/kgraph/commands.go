package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/server"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/pkg/knowledge"
)

func newServeCommand(a *app) *cobra.Command {
	var transport, addr, endpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio or SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != "" {
				a.cfg.Server.Transport = transport
			}
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if endpoint != "" {
				a.cfg.Server.SSEEndpoint = endpoint
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if err := metrics.Init(a.cfg.Metrics.Prometheus, a.cfg.Metrics.Addr); err != nil {
				return fmt.Errorf("failed to start metrics: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.withService(ctx, func(svc *knowledge.Service) error {
				srv := server.NewMCPServer(svc, a.log)
				a.log.Info("starting knowledge graph server", zap.String("transport", a.cfg.Server.Transport))
				var err error
				switch a.cfg.Server.Transport {
				case "sse":
					err = srv.RunSSE(ctx, a.cfg.Server.Addr, a.cfg.Server.SSEEndpoint)
				default:
					err = srv.Run(ctx)
				}
				if err != nil && !errors.Is(err, ctx.Err()) {
					return err
				}
				a.log.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "transport: stdio or sse (overrides KG_TRANSPORT)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for SSE (overrides KG_ADDR)")
	cmd.Flags().StringVar(&endpoint, "sse-endpoint", "", "SSE endpoint path (overrides KG_SSE_ENDPOINT)")
	return cmd
}

// notesFile accepts either a bare list of notes or {notes: [...]}. YAML is a
// superset of JSON, so both formats decode the same way.
type notesFile struct {
	Notes []apptype.NoteInput `yaml:"notes"`
}

func decodeNotes(data []byte) ([]apptype.NoteInput, error) {
	var list []apptype.NoteInput
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc notesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse notes: %w", err)
	}
	return doc.Notes, nil
}

func newIngestCommand(a *app) *cobra.Command {
	var title, content string
	var tags []string
	cmd := &cobra.Command{
		Use:   "ingest [file|-]",
		Short: "Ingest one note or a YAML/JSON batch of notes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var notes []apptype.NoteInput
			switch {
			case content != "":
				notes = []apptype.NoteInput{{Title: title, Content: content, Tags: tags}}
			case len(args) == 1:
				var (
					data []byte
					err  error
				)
				if args[0] == "-" {
					data, err = io.ReadAll(cmd.InOrStdin())
				} else {
					data, err = os.ReadFile(args[0])
				}
				if err != nil {
					return err
				}
				if notes, err = decodeNotes(data); err != nil {
					return err
				}
			default:
				return fmt.Errorf("provide a notes file or --content")
			}

			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				report := svc.ImportNotes(cmd.Context(), notes)
				if err := a.render(cmd.OutOrStdout(), report, func(w io.Writer) error {
					for _, r := range report.Succeeded {
						fmt.Fprintf(w, "added %s %q (%d entities, %d edges)\n", r.Note.ID, r.Note.Name, len(r.Entities), len(r.Edges))
					}
					for _, f := range report.Failed {
						fmt.Fprintf(w, "failed #%d %q: %s\n", f.Index, f.Title, f.Error)
					}
					_, err := fmt.Fprintf(w, "%d/%d notes ingested\n", len(report.Succeeded), report.Total)
					return err
				}); err != nil {
					return err
				}
				return report.Err
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "note title (with --content)")
	cmd.Flags().StringVar(&content, "content", "", "ingest a single note with this body")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "note tag (repeatable, with --content)")
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var maxResults int
	var generate, trace bool
	cmd := &cobra.Command{
		Use:   "query <question...>",
		Short: "Query the graph, optionally printing the traversal as it happens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := apptype.QueryRequest{
				Query:         strings.Join(args, " "),
				MaxResults:    maxResults,
				UseGeneration: generate,
			}
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				stream, wait := svc.Engine().StreamQuery(cmd.Context(), req)
				errOut := cmd.ErrOrStderr()
				for ev := range stream.C(cmd.Context()) {
					if trace {
						printTraceEvent(errOut, ev)
					}
				}
				res, err := wait()
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
					if res.Response != "" {
						fmt.Fprintln(w, res.Response)
						fmt.Fprintln(w)
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTYPE\tNAME")
					for _, n := range res.Nodes {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, n.EntityType, n.Name)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "\n%d nodes, %d edges in %.1fms\n", len(res.Nodes), len(res.Edges), res.LatencyMs)
					return err
				})
			})
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "embedding-search seeds (default 10)")
	cmd.Flags().BoolVar(&generate, "generate", false, "compose an answer with the configured language model")
	cmd.Flags().BoolVar(&trace, "trace", false, "print traversal events to stderr")
	return cmd
}

func printTraceEvent(w io.Writer, ev events.Event) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "[%02d] %-16s", ev.Seq, ev.Phase)
	if ev.NodeID != "" {
		fmt.Fprintf(&b, " node=%s", ev.NodeID)
	}
	if ev.EdgeID != "" {
		fmt.Fprintf(&b, " edge=%s", ev.EdgeID)
	}
	if ev.Score != 0 {
		fmt.Fprintf(&b, " score=%.3f", ev.Score)
	}
	if ev.Discovered {
		b.WriteString(" discovered")
	}
	b.WriteByte('\n')
	_, _ = w.Write(b.Bytes())
}

func newStateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show graph counts, schema types and query metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				st, err := svc.State(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), st, func(w io.Writer) error {
					fmt.Fprintf(w, "nodes: %d\nedges: %d\nqueries: %d (llm calls %d, avg %.1fms)\n",
						st.NodeCount, st.EdgeCount, st.TotalQueries, st.LLMCalls, st.AvgLatencyMs)
					return writeSchema(w, st.SchemaTypes)
				})
			})
		},
	}
}

func writeSchema(w io.Writer, types []apptype.SchemaType) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT\tSEED\tEVOLVED FROM")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", t.Name, t.Count, t.IsSeed, t.EvolvedFrom)
	}
	return tw.Flush()
}

func newAdaptationsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "adaptations",
		Short: "List recent adaptation events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				evs, err := svc.Adaptations(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), evs, func(w io.Writer) error {
					for _, ev := range evs {
						fmt.Fprintf(w, "%s  %-16s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.EventType, ev.Description)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}

func newTypesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List, define or suggest schema types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				types, err := svc.Engine().Schema(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), types, func(w io.Writer) error { return writeSchema(w, types) })
			})
		},
	}

	var evolvedFrom string
	define := &cobra.Command{
		Use:   "define <name>",
		Short: "Register a schema type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				name, created, err := svc.Engine().DefineType(cmd.Context(), args[0], evolvedFrom)
				if err != nil {
					return err
				}
				out := apptype.DefineTypeResult{Name: name.String(), Created: created}
				return a.render(cmd.OutOrStdout(), out, func(w io.Writer) error {
					if created {
						_, err := fmt.Fprintf(w, "created %s\n", name)
						return err
					}
					_, err := fmt.Fprintf(w, "%s already exists\n", name)
					return err
				})
			})
		},
	}
	define.Flags().StringVar(&evolvedFrom, "from", "", "parent type")

	var register bool
	suggest := &cobra.Command{
		Use:   "suggest <example...>",
		Short: "Suggest a type name for example entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				sug, err := svc.Engine().SuggestType(cmd.Context(), args, register)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), sug, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s: %s\n", sug.Name, sug.Description)
					return err
				})
			})
		},
	}
	suggest.Flags().BoolVar(&register, "register", false, "register the suggested type")

	cmd.AddCommand(define, suggest)
	return cmd
}

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <keep-id> <merge-id...>",
		Short: "Fold duplicate nodes into one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				node, err := svc.Merge(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), node, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "merged %d node(s) into %s %q\n", len(args)-1, node.ID, node.Name)
					return err
				})
			})
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every node, edge and adaptation event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the graph without --yes")
			}
			return a.withService(cmd.Context(), func(svc *knowledge.Service) error {
				if err := svc.Clear(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "graph cleared")
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
