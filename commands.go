package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/wordforge/internal/excel"
	"github.com/example/wordforge/internal/spaced_repetition"
	"github.com/example/wordforge/pkg/models"
)

const timeLayout = "2006-01-02 15:04"

func usage(line string) int {
	fmt.Fprintln(os.Stderr, "usage: wordforge "+line)
	return 1
}

func fail(op string, err error) int {
	fmt.Fprintf(os.Stderr, "wordforge: %s: %v\n", op, err)
	return 1
}

func (a *app) cmdServe(ctx context.Context, _ []string) int {
	// A crash between deleting all jobs and re-creating the digest is healed here.
	if _, err := a.trainer.EnsureCatchUpScheduled(ctx); err != nil {
		return fail("serve", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fail("serve", err)
	}

	a.logger.Info("wordforge started, press Ctrl+C to stop")
	<-ctx.Done()
	a.logger.Info("shutting down")
	a.scheduler.Stop()
	return 0
}

func (a *app) cmdAdd(ctx context.Context, args []string) int {
	if len(args) < 1 {
		return usage("add <term> [definition]")
	}
	definition := strings.Join(args[1:], " ")
	word, err := a.trainer.AddItem(ctx, args[0], definition)
	if word == nil {
		return fail("add", err)
	}
	fmt.Printf("added %s %q, first review at %s\n", word.ID, word.Term, word.DueAt.Local().Format(timeLayout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wordforge: warning: %v\n", err)
	}
	return 0
}

func (a *app) cmdAnswer(ctx context.Context, args []string) int {
	if len(args) != 2 {
		return usage("answer <id> <correct|incorrect>")
	}
	outcome, err := spaced_repetition.ParseOutcome(args[1])
	if err != nil {
		return fail("answer", err)
	}
	word, err := a.trainer.RecordAnswer(ctx, args[0], outcome)
	if word == nil && err == nil {
		return fail("answer", fmt.Errorf("no word with id %s", args[0]))
	}
	if word == nil {
		return fail("answer", err)
	}
	fmt.Printf("%s: tier %d, next review at %s\n", word.Term, word.Tier, word.DueAt.Local().Format(timeLayout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wordforge: warning: %v\n", err)
	}
	return 0
}

func (a *app) cmdShow(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return usage("show <id>")
	}
	word, err := a.trainer.GetItem(ctx, args[0])
	if err != nil {
		return fail("show", err)
	}
	printWord(os.Stdout, word)
	return 0
}

// printWord writes the detail view of a single word
func printWord(out io.Writer, word *models.Word) {
	answered := "never"
	if word.LastAnsweredAt != nil {
		answered = word.LastAnsweredAt.Local().Format(timeLayout)
	}
	meaning := word.Definition
	if meaning == "" {
		meaning = "-"
	}

	fmt.Fprintln(out, word.Term)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  meaning:\t%s\n", meaning)
	fmt.Fprintf(w, "  tier:\tTier %d of %d\n", word.Tier, spaced_repetition.MaxTier)
	fmt.Fprintf(w, "  correct:\t%d\n", word.CorrectCount)
	fmt.Fprintf(w, "  incorrect:\t%d\n", word.IncorrectCount)
	fmt.Fprintf(w, "  created:\t%s\n", word.CreatedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "  last answered:\t%s\n", answered)
	fmt.Fprintf(w, "  next review:\t%s\n", word.DueAt.Local().Format(timeLayout))
	w.Flush()
}

func (a *app) cmdDelete(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	if err := a.trainer.DeleteItem(ctx, args[0]); err != nil {
		return fail("delete", err)
	}
	fmt.Println("deleted", args[0])
	return 0
}

func (a *app) cmdDeleteAll(ctx context.Context, _ []string) int {
	if err := a.trainer.DeleteAllItems(ctx); err != nil {
		return fail("delete-all", err)
	}
	fmt.Println("deleted all words")
	return 0
}

func (a *app) cmdList(ctx context.Context, _ []string) int {
	words, err := a.trainer.ListItems(ctx)
	if err != nil {
		return fail("list", err)
	}
	if len(words) == 0 {
		fmt.Println("no words yet")
		return 0
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTERM\tTIER\tDUE\tSTATUS")
	for _, word := range words {
		status := ""
		switch {
		case word.IsOverdue(now):
			status = "overdue"
		case spaced_repetition.IsMastered(word.Tier):
			status = "mastered"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", word.ID, word.Term, word.Tier, word.DueAt.Local().Format(timeLayout), status)
	}
	w.Flush()
	return 0
}

func (a *app) cmdJobs(ctx context.Context, _ []string) int {
	jobs, err := a.scheduler.Pending(ctx)
	if err != nil {
		return fail("jobs", err)
	}
	if len(jobs) == 0 {
		fmt.Println("no pending jobs")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tKEY\tKIND\tFIRE AT\tTEXT")
	for _, job := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", job.Seq, job.Key, job.Kind, job.FireAt.Local().Format(timeLayout), job.Payload)
	}
	w.Flush()
	return 0
}

func (a *app) cmdImport(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return usage("import <file.xlsx|file.csv>")
	}
	cfg := excel.DefaultImportConfig()
	cfg.FilePath = args[0]

	result, err := excel.ImportWords(ctx, cfg, a.trainer)
	if result != nil {
		fmt.Printf("processed %d rows: %d added, %d skipped\n", result.TotalProcessed, result.Created, result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, "  "+e)
		}
	}
	if err != nil {
		return fail("import", err)
	}
	return 0
}

func (a *app) cmdCatchUp(ctx context.Context, _ []string) int {
	if err := a.catchUp.Run(ctx); err != nil {
		return fail("catchup", err)
	}
	return 0
}
