// internal/cli/commands.go
package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/services"
	"github.com/Corphon/shakescript/internal/ui"
)

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid story id %q", arg)
	}
	return id, nil
}

func newListCommand(e *env) *cobra.Command {
	var (
		search string
		detail bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stories in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stories, err := e.library.SearchStories(cmd.Context(), search)
			if err != nil {
				return err
			}
			if len(stories) == 0 {
				if search != "" {
					e.printer.Info("No stories match %q", search)
				} else {
					e.printer.Info("The library is empty")
				}
				return nil
			}

			if !detail {
				rows := make([][]string, len(stories))
				for i, s := range stories {
					rows[i] = []string{strconv.Itoa(s.ID), s.Title}
				}
				e.printer.Table([]string{"ID", "Title"}, rows)
				return nil
			}

			ids := make([]int, len(stories))
			for i, s := range stories {
				ids[i] = s.ID
			}
			details, err := e.library.GetStories(cmd.Context(), ids)
			if err != nil {
				return err
			}
			rows := make([][]string, len(details))
			for i, d := range details {
				rows[i] = []string{strconv.Itoa(d.ID), d.Title, strconv.Itoa(len(d.Episodes)), d.Summary}
			}
			e.printer.Table([]string{"ID", "Title", "Episodes", "Summary"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only titles containing this text")
	cmd.Flags().BoolVar(&detail, "detail", false, "load every story and show episode counts")
	return cmd
}

func newShowCommand(e *env) *cobra.Command {
	var episode int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			story, err := e.library.GetStory(cmd.Context(), id)
			if err != nil {
				return err
			}

			view := models.NewStoryView(story)
			pager := ui.NewPaginator(len(view.Episodes))
			if episode != 0 && !pager.JumpTo(episode-1) {
				return fmt.Errorf("story %d has %d episodes, no episode %d", id, len(view.Episodes), episode)
			}

			e.printer.Header(view.Title)
			if view.Summary != "" {
				e.printer.Print("%s", view.Summary)
			}

			if episode != 0 {
				printEpisode(e.printer, view.Episodes[pager.Current()], pager.Position())
				return nil
			}
			for range view.Episodes {
				printEpisode(e.printer, view.Episodes[pager.Current()], pager.Position())
				pager.Next()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&episode, "episode", "e", 0, "print only this episode, numbered from 1")
	return cmd
}

func printEpisode(p *Printer, ep models.Episode, pos ui.Position) {
	p.Header(fmt.Sprintf("Episode %d of %d: %s", pos.Number, pos.Total, ep.Title))
	p.Print("%s", strings.TrimSpace(ep.Content))
}

func newGenerateCommand(e *env) *cobra.Command {
	form := ui.NewPromptForm()
	var method string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a story from a prompt and generate its episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form.RefineMethod = models.RefineMethod(strings.ToLower(method))
			if err := form.Validate(); err != nil {
				return fmt.Errorf("invalid story request: prompt must not be blank, episodes must be %d-%d, batch at most episodes, method human or ai",
					ui.MinEpisodes, ui.MaxEpisodes)
			}

			e.printer.Info("Generating %d episodes...", form.EpisodeCount)
			view, err := e.stories.Submit(cmd.Context(), "", form.Request())
			if err != nil {
				var genErr *services.GenerationError
				if stderrors.As(err, &genErr) && !genErr.Compensated {
					e.printer.Warning("story %d was created without episodes, remove it with: shakectl delete %d", genErr.StoryID, genErr.StoryID)
				}
				return err
			}

			e.printer.Success("Generated %q (story %d) with %d episodes", view.Title, view.StoryID, len(view.Episodes))
			rows := make([][]string, len(view.Episodes))
			for i, ep := range view.Episodes {
				rows[i] = []string{strconv.Itoa(i + 1), ep.Title}
			}
			e.printer.Table([]string{"#", "Title"}, rows)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&form.Prompt, "prompt", "p", "", "story prompt")
	flags.IntVar(&form.EpisodeCount, "episodes", ui.DefaultEpisodes, "number of episodes (1-50)")
	flags.IntVar(&form.BatchSize, "batch", ui.DefaultBatchSize, "episodes generated per batch")
	flags.StringVar(&method, "method", string(ui.DefaultMethod), "refinement method: human or ai")
	flags.BoolVar(&form.IsHinglish, "hinglish", false, "write the story in Hinglish")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newExportCommand(e *env) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a story as pdf, markdown or txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			exportFormat, err := services.ParseExportFormat(format)
			if err != nil {
				return err
			}
			result, err := e.exports.ExportStory(cmd.Context(), id, exportFormat)
			if err != nil {
				return err
			}

			if out == "-" {
				_, err := e.printer.Out().Write(result.Content)
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, result.Content, 0644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			e.printer.Success("Wrote %s (%d bytes)", out, result.FileSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "pdf, markdown or txt")
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file, "-" for stdout (default is the story filename)`)
	return cmd
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a story and its episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.library.DeleteStory(cmd.Context(), id); err != nil {
				return err
			}
			e.printer.Success("Deleted story %d", id)
			return nil
		},
	}
}

func newStatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the benchmark scores against the baseline model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scores := e.stats.Scores()
			rows := make([][]string, len(scores))
			for i, s := range scores {
				rows[i] = []string{s.Attribute, score(s.Story1), score(s.Story2), score(s.Baseline)}
			}
			e.printer.Table([]string{"Attribute", "Story 1", "Story 2", "Baseline LLM"}, rows)

			imp := e.stats.Improvement()
			e.printer.Header("Average improvement over baseline")
			e.printer.Print("Story 1  +%.1f", imp.Story1)
			e.printer.Print("Story 2  +%.1f", imp.Story2)
			e.printer.Print("Overall  +%.1f", imp.Overall)
			return nil
		},
	}
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
