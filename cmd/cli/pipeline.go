package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/myrjola/inkwell/internal/orchestrator"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var pipelineGroup = &cobra.Group{
	ID:    "pipeline",
	Title: "Chapter pipeline",
}

func init() {
	runCmd.Flags().String("goal", "", "what the chapter should achieve")
	runCmd.Flags().StringSlice("characters", nil, "limit character cards to these participants")
	runCmd.Flags().Bool("stream", false, "print generated prose as it streams")
	deleteChapterCmd.Flags().Bool("purge-canon", false, "also remove the canon committed by the chapter")
}

var runCmd = &cobra.Command{
	Use:     "run <project> <chapter>...",
	GroupID: "pipeline",
	Short:   "Run chapter pipelines",
	Long: `Runs or resumes the pipeline of each chapter. Chapters run concurrently up to INKWELL_PIPELINE_PARALLELISM;
run them one at a time when later chapters should see the summaries of earlier ones.`,
	Args: cobra.MinimumNArgs(2), //nolint:mnd // project and at least one chapter
	RunE: func(cmd *cobra.Command, args []string) error {
		goal, _ := cmd.Flags().GetString("goal")
		characters, _ := cmd.Flags().GetStringSlice("characters")
		stream, _ := cmd.Flags().GetBool("stream")
		out := &syncWriter{w: cmd.OutOrStdout(), mu: sync.Mutex{}}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(application.Config.Pipeline.Parallelism)
		for _, chapter := range args[1:] {
			g.Go(func() error {
				record, err := application.Orchestrator.Run(ctx, orchestrator.Request{
					ProjectID:  args[0],
					ChapterID:  chapter,
					Goal:       goal,
					Characters: characters,
					RunID:      "",
					OnEvent:    printEvent(out, stream),
				})
				if err != nil {
					return fmt.Errorf("chapter %s: %w", chapter, err)
				}
				out.printf("%s: %s\n", chapter, record.State)
				return nil
			})
		}
		return g.Wait()
	},
}

func printEvent(out *syncWriter, stream bool) func(orchestrator.Event) {
	return func(e orchestrator.Event) {
		switch e.Kind {
		case orchestrator.EventDelta:
			if stream {
				out.printf("%s", e.Message)
			}
		case orchestrator.EventStageCompleted:
			if stream {
				out.printf("\n")
			}
			out.printf("%s: %s done\n", e.ChapterID, e.State)
		case orchestrator.EventStageFailed:
			out.printf("%s: %s failed: %s\n", e.ChapterID, e.State, e.Message)
		case orchestrator.EventStageStarted, orchestrator.EventRunCompleted:
		}
	}
}

// syncWriter serializes output of concurrent chapter runs.
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (s *syncWriter) printf(format string, a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, a...)
}

var statusCmd = &cobra.Command{
	Use:     "status <project> <chapter>",
	GroupID: "pipeline",
	Short:   "Show chapter pipeline state",
	Args:    cobra.ExactArgs(2), //nolint:mnd // project and chapter
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := application.Orchestrator.Status(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "state:          %s\n", record.State)
		_, _ = fmt.Fprintf(w, "last completed: %s\n", record.LastCompleted)
		if record.RunID != "" {
			_, _ = fmt.Fprintf(w, "run:            %s\n", record.RunID)
		}
		if record.Error != "" {
			_, _ = fmt.Fprintf(w, "error:          %s\n", record.Error)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset <project> <chapter>",
	GroupID: "pipeline",
	Short:   "Reset chapter so that the next run regenerates it",
	Args:    cobra.ExactArgs(2), //nolint:mnd // project and chapter
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.Orchestrator.Reset(cmd.Context(), args[0], args[1])
	},
}

var conflictsCmd = &cobra.Command{
	Use:     "conflicts <project> <chapter>",
	GroupID: "pipeline",
	Short:   "Print the chapter's conflict report",
	Args:    cobra.ExactArgs(2), //nolint:mnd // project and chapter
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Chapters.GetConflictReport(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(report.Conflicts) == 0 {
			_, _ = fmt.Fprintln(w, "no conflicts")
			return nil
		}
		_, _ = fmt.Fprintln(w, strings.Join(report.Conflicts, "\n"))
		return nil
	},
}

var deleteChapterCmd = &cobra.Command{
	Use:     "delete-chapter <project> <chapter>",
	GroupID: "pipeline",
	Short:   "Delete every artifact of a chapter",
	Args:    cobra.ExactArgs(2), //nolint:mnd // project and chapter
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deleted, err := application.Chapters.DeleteChapter(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if purge, _ := cmd.Flags().GetBool("purge-canon"); purge {
			if err = application.Canon.PurgeChapter(ctx, args[0], args[1]); err != nil {
				return err
			}
		}
		if !deleted {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "chapter %s had no artifacts\n", args[1])
		}
		return nil
	},
}
