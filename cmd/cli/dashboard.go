package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard <project>",
	GroupID: "project",
	Short:   "Show project overview",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := application.Dashboard.Project(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		p := message.NewPrinter(language.English)
		w := cmd.OutOrStdout()
		s := view.Stats
		_, _ = p.Fprintf(w, "%s (%s)\n", view.Project.Name, view.Project.ID)
		_, _ = p.Fprintf(w, "%d words in %d finished chapters, %d in progress\n",
			s.TotalWords, s.CompletedChapters, s.InProgressChapters)
		_, _ = p.Fprintf(w, "canon: %d characters, %d facts, %d timeline events, %d character states\n\n",
			s.Characters, s.Facts, s.TimelineEvents, s.CharacterStates)
		for _, c := range view.Chapters {
			_, _ = p.Fprintf(w, "%-8s %-18s %7d words  %d conflicts  %s\n",
				c.Chapter, c.State, c.WordCount, c.ConflictCount, c.Title)
			for _, preview := range c.ConflictPreviews {
				_, _ = p.Fprintf(w, "         ! %s\n", preview)
			}
		}
		if len(view.RecentFacts) > 0 {
			_, _ = p.Fprintf(w, "\nrecent facts:\n")
			for _, f := range view.RecentFacts {
				_, _ = p.Fprintf(w, "  [%s] %s\n", f.ID, f.Statement)
			}
		}
		return nil
	},
}
