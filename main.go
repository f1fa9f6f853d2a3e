// Command wordforge is a vocabulary trainer that reminds you to review each
// word at growing intervals and sends a daily digest of overdue words.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/wordforge/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	}

	a, err := newApp(config.Load())
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, a, os.Args[1], os.Args[2:])
	stop()
	a.Close()
	os.Exit(code)
}

func run(ctx context.Context, a *app, command string, args []string) int {
	switch command {
	case "serve":
		return a.cmdServe(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "answer":
		return a.cmdAnswer(ctx, args)
	case "show":
		return a.cmdShow(ctx, args)
	case "delete":
		return a.cmdDelete(ctx, args)
	case "delete-all":
		return a.cmdDeleteAll(ctx, args)
	case "list", "ls":
		return a.cmdList(ctx, args)
	case "jobs":
		return a.cmdJobs(ctx, args)
	case "import":
		return a.cmdImport(ctx, args)
	case "catchup":
		return a.cmdCatchUp(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "wordforge: unknown command %q\n", command)
		fmt.Fprintln(os.Stderr, "Run 'wordforge --help' for usage.")
		return 1
	}
}

func printUsage() {
	fmt.Print(`wordforge - spaced repetition reminders for your vocabulary

Usage:
  wordforge <command> [args]

Commands:
  serve                            Run the reminder loop until interrupted
  add <term> [definition]          Add a word; first reminder in 1h
  answer <id> <correct|incorrect>  Record a review answer
  show <id>                        Show a word with its tier and answer history
  delete <id>                      Delete a word and its reminder
  delete-all                       Delete every word and reminder
  list                             List words, soonest due first
  jobs                             List pending reminders
  import <file.xlsx|file.csv>      Import words (column A: word, B: definition)
  catchup                          Send the overdue digest now

Aliases:
  ls = list

Environment:
  WORDFORGE_CONFIG       Path to a YAML config file
  DB_TYPE                sqlite (default), sqlite3 or postgres
  DATABASE_DSN           Database path or DSN (default: data/wordforge.db)
  TELEGRAM_BOT_TOKEN     Deliver notifications through this bot
  TELEGRAM_CHAT_ID       Chat that receives notifications
  NOTIFICATIONS_ENABLED  Set to false to suppress delivery
  CATCHUP_TIME           Daily digest time, HH:MM (default: 09:00)
  SCHEDULER_TIMEZONE     Time zone of the digest (default: Local)
  POLL_INTERVAL          How often due reminders are checked (default: 30s)
  LOG_LEVEL              debug, info, warn or error
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "wordforge: "+format+"\n", args...)
	os.Exit(1)
}
