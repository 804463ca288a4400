package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dori/tasca/internal/app"
	"github.com/dori/tasca/internal/config"
	"github.com/dori/tasca/internal/filter"
	"github.com/dori/tasca/internal/model"
	"github.com/dori/tasca/internal/remote/googletasks"
	"github.com/dori/tasca/internal/syncer"
)

var (
	version = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = handleAdd(os.Args[2:])
	case "list":
		err = handleList(os.Args[2:])
	case "lists":
		err = handleLists(os.Args[2:])
	case "done":
		err = handleDone(os.Args[2:])
	case "rm":
		err = handleRm(os.Args[2:])
	case "sync":
		err = handleSync(os.Args[2:])
	case "conflicts":
		err = handleConflicts(os.Args[2:])
	case "version":
		fmt.Printf("tasca v%s\n", version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, syncer.ErrSyncInProgress) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printHelp() {
	help := `tasca - An offline-first todo application

Usage:
  tasca add [--list <id>] <task>       Quick add a task
  tasca list [flags]                   List cached tasks
  tasca lists                          List cached tasklists
  tasca done <task-id>                 Toggle a task done
  tasca rm <task-id>                   Delete a task
  tasca sync [tasklist-id]             Sync with the remote service
  tasca conflicts [tasklist-id]        Show the conflict log
  tasca version                        Show version

Quick Add Syntax:
  tasca add "Buy groceries #errands due:tomorrow"

  Tags:      #tag           (e.g., #home, #work, #p1)
  Due date:  due:tomorrow due:friday due:2024-01-15

List Flags:
  --list <id>        Restrict to one tasklist
  --filter <expr>    Filter expression (#tag, today:due, term|term)
  --search <terms>   Search title+notes, | separates alternatives
  --order-by <field> Sort by field, -field for descending
  --all              Include soft-deleted tasks
  --json             JSON output

Edits are cached locally and pushed on the next sync. Conflicts resolve by
last writer wins; the losing side lands in the conflict log.`

	fmt.Println(help)
}

func openApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// credentialSource loads the bearer token supplied by the auth collaborator.
// tasca never mints or refreshes tokens itself.
func credentialSource() (oauth2.TokenSource, error) {
	path := os.Getenv("TASCA_TOKEN_FILE")
	if path == "" {
		path = filepath.Join(config.DefaultConfigDir(), "token.json")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no credential at %s (supply one via TASCA_TOKEN_FILE): %w", path, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}

	return oauth2.StaticTokenSource(&token), nil
}

func handleAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	listID := fs.String("list", "", "Tasklist id (default: the only local tasklist)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: tasca add [--list <id>] <task>")
	}
	text := strings.Join(fs.Args(), " ")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target := *listID
	if target == "" {
		lists, err := a.Store.ListTasklists()
		if err != nil {
			return err
		}
		switch len(lists) {
		case 0:
			return fmt.Errorf("no local tasklist yet; run 'tasca sync' first")
		case 1:
			target = lists[0].ID
		default:
			return fmt.Errorf("multiple tasklists cached; pick one with --list")
		}
	}

	task := parseQuickAdd(text)
	task.TasklistID = target

	created, err := a.Store.CreateTask(task)
	if err != nil {
		return err
	}

	fmt.Printf("Created: %s\n", created.Title)
	if created.Due != nil {
		fmt.Printf("Due: %s\n", formatDueDate(*created.Due))
	}
	if len(created.Tags) > 0 {
		fmt.Printf("Tags: #%s\n", strings.Join(created.Tags, " #"))
	}
	return nil
}

func handleList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	listID := fs.String("list", "", "Restrict to one tasklist")
	filterExpr := fs.String("filter", "", "Filter expression")
	search := fs.String("search", "", "Search terms, | separated")
	orderBy := fs.String("order-by", "", "Sort field, -field for descending")
	all := fs.Bool("all", false, "Include soft-deleted tasks")
	asJSON := fs.Bool("json", false, "JSON output")
	fs.Parse(args)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var tasks []model.Task
	if *listID != "" {
		tasks, err = a.Store.ListTasks(*listID, *all)
		if err != nil {
			return err
		}
	} else {
		lists, err := a.Store.ListTasklists()
		if err != nil {
			return err
		}
		for _, l := range lists {
			batch, err := a.Store.ListTasks(l.ID, *all)
			if err != nil {
				return err
			}
			tasks = append(tasks, batch...)
		}
	}

	expr := *filterExpr
	if *search != "" {
		expr = strings.TrimSpace(expr + " " + *search)
	}

	tasks, err = a.Evaluator.Evaluate(expr, tasks, *orderBy, time.Now())
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(tasks)
	}

	for _, t := range tasks {
		printTask(&t)
	}
	return nil
}

func printTask(t *model.Task) {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	line := fmt.Sprintf("[%s] %s  %s", mark, t.ID, t.Title)
	if t.Due != nil {
		line += fmt.Sprintf("  (due %s)", formatDueDate(*t.Due))
	}
	if t.SyncState != model.StateSynced {
		line += fmt.Sprintf("  [%s]", t.SyncState)
	}
	fmt.Println(line)
}

func handleLists(args []string) error {
	fs := flag.NewFlagSet("lists", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "JSON output")
	fs.Parse(args)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lists, err := a.Store.ListTasklists()
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(lists)
	}

	for _, l := range lists {
		fmt.Printf("%s  %s  (%d/%d done)\n", l.ID, l.Title, l.CompletedCount, l.TaskCount)
	}
	return nil
}

func handleDone(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tasca done <task-id>")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.Store.GetTask(args[0])
	if err != nil {
		return err
	}

	if err := a.Store.SetTaskCompleted(task.ID, !task.Completed); err != nil {
		return err
	}

	if task.Completed {
		fmt.Printf("Reopened: %s\n", task.Title)
	} else {
		fmt.Printf("Done: %s\n", task.Title)
	}
	return nil
}

func handleRm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tasca rm <task-id>")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.Store.GetTask(args[0])
	if err != nil {
		return err
	}

	if err := a.Store.DeleteLocal(task.ID); err != nil {
		return err
	}

	fmt.Printf("Deleted: %s\n", task.Title)
	return nil
}

func handleSync(args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := credentialSource()
	if err != nil {
		return err
	}

	ctx := context.Background()
	gw, err := googletasks.New(ctx, ts, a.Config.RemoteTimeout)
	if err != nil {
		return err
	}
	engine := a.Engine(gw)

	var reports []syncer.Report
	if len(args) > 0 {
		report, err := engine.SyncTasklist(ctx, args[0])
		if err != nil {
			return err
		}
		reports = append(reports, *report)
	} else {
		reports, err = engine.SyncAll(ctx)
		if err != nil {
			return err
		}
	}

	for _, r := range reports {
		fmt.Printf("%s: pulled %d, pushed %d, conflicts %d\n",
			r.TasklistID, r.Pulled, r.Pushed, r.Conflicts)
		if r.PushWarnings != nil {
			fmt.Printf("  warnings: %v\n", r.PushWarnings)
		}
	}
	return nil
}

func handleConflicts(args []string) error {
	fs := flag.NewFlagSet("conflicts", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "JSON output")
	fs.Parse(args)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasklistID := ""
	if fs.NArg() > 0 {
		tasklistID = fs.Arg(0)
	}

	entries, err := a.Store.Conflicts(tasklistID)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No conflicts recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  task %s  %s (%s): discarded %q\n",
			e.OccurredAt.Format("2006-01-02 15:04"), e.TaskID, e.Field, e.Reason, e.Discarded)
	}
	return nil
}

// parseQuickAdd extracts #tags and a due: token from free text. Tags stay in
// the title so a later re-extraction from text yields the same set.
func parseQuickAdd(text string) model.Task {
	var task model.Task

	words := strings.Fields(text)
	var titleParts []string

	for _, word := range words {
		if strings.HasPrefix(strings.ToLower(word), "due:") {
			dateStr := strings.TrimPrefix(strings.ToLower(word), "due:")
			if parsed := parseNaturalDate(dateStr); parsed != nil {
				task.Due = parsed
				continue
			}
		}
		titleParts = append(titleParts, word)
	}

	task.Title = strings.Join(titleParts, " ")
	task.Tags = filter.ExtractTags(task.Title)
	return task
}

func parseNaturalDate(s string) *time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	switch strings.ToLower(s) {
	case "today":
		return &today
	case "tomorrow", "tom":
		t := today.AddDate(0, 0, 1)
		return &t
	case "monday", "mon":
		return nextWeekday(time.Monday)
	case "tuesday", "tue":
		return nextWeekday(time.Tuesday)
	case "wednesday", "wed":
		return nextWeekday(time.Wednesday)
	case "thursday", "thu":
		return nextWeekday(time.Thursday)
	case "friday", "fri":
		return nextWeekday(time.Friday)
	case "saturday", "sat":
		return nextWeekday(time.Saturday)
	case "sunday", "sun":
		return nextWeekday(time.Sunday)
	case "nextweek":
		t := today.AddDate(0, 0, 7)
		return &t
	}

	// Try parsing as date
	formats := []string{
		"2006-01-02",
		"01/02/2006",
		"01-02-2006",
		"Jan 2",
		"Jan 2, 2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			// If no year, use current year
			if t.Year() == 0 {
				t = time.Date(now.Year(), t.Month(), t.Day(), 23, 59, 59, 0, now.Location())
			}
			return &t
		}
	}

	return nil
}

func nextWeekday(day time.Weekday) *time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	daysUntil := int(day - now.Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}

	t := today.AddDate(0, 0, daysUntil)
	return &t
}

func formatDueDate(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today"
	}

	tomorrow := now.AddDate(0, 0, 1)
	if t.Year() == tomorrow.Year() && t.YearDay() == tomorrow.YearDay() {
		return "tomorrow"
	}

	if t.Year() == now.Year() {
		return t.Format("Mon, Jan 2")
	}

	return t.Format("Jan 2, 2006")
}
