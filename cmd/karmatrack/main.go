package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spacesedan/karmatrack/config"
	"github.com/spacesedan/karmatrack/internal/clients"
	"github.com/spacesedan/karmatrack/internal/logging"
	"github.com/spacesedan/karmatrack/internal/models"
	"github.com/spacesedan/karmatrack/internal/refresh"
	"github.com/spacesedan/karmatrack/internal/report"
	"github.com/spacesedan/karmatrack/internal/scheduler"
	"github.com/spacesedan/karmatrack/internal/store"
)

const usage = `karmatrack — track how your Reddit posts perform

Usage: karmatrack <command> [flags]

Commands:
  log       record a published post (--url, --angle, [--draft])
  sync      refresh stale post metrics ([--force])
  report    build the monthly report ([--month YYYY-MM])
  profile   save subreddit research (--name, ...)
  research  fetch live subreddit info (--subreddit, [--posts N])
  status    show a summary of the current state
  repair    back up and rebuild a corrupt post log
  watch     run sync on a schedule until interrupted
`

func main() {
	config.LoadEnv(os.Getenv("APP_ENV"))
	logging.InitLogger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "log":
		err = runLog(os.Args[2:])
	case "sync":
		err = runSync(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "profile":
		err = runProfile(os.Args[2:])
	case "research":
		err = runResearch(os.Args[2:])
	case "status":
		err = runStatus()
	case "repair":
		err = runRepair()
	case "watch":
		err = runWatch()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("[karmatrack] command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func dataDir() string {
	return config.Getenv("TRACKER_DATA_DIR", "memory")
}

func newStore() (store.Store, error) {
	switch backend := config.Getenv("TRACKER_STORE_BACKEND", "file"); backend {
	case "file":
		return store.NewFileStore(dataDir())
	case "dynamodb":
		return store.NewDynamoStore(clients.GetDynamoDBClient()), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func stalenessThreshold() time.Duration {
	if v := os.Getenv("TRACKER_STALENESS_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return 48 * time.Hour
}

func newOrchestrator(s store.Store) *refresh.Orchestrator {
	opts := []refresh.Option{refresh.WithThreshold(stalenessThreshold())}
	if clients.ValkeyEnabled() {
		opts = append(opts, refresh.WithCache(clients.InitValkey()))
	}
	return refresh.NewOrchestrator(s, clients.GetRedditClient(), opts...)
}

func runLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	url := fs.String("url", "", "reddit post url (required)")
	angleFlag := fs.String("angle", "", "post angle: story, feedback or value (required)")
	draft := fs.String("draft", "", "path of the draft this post came from")
	fs.Parse(args)

	if *url == "" {
		return errors.New("--url is required")
	}
	if *angleFlag == "" {
		return errors.New("--angle is required (story, feedback or value)")
	}
	angle, err := models.ParseAngle(*angleFlag)
	if err != nil {
		return err
	}
	subreddit, postID, err := clients.ParsePostURL(*url)
	if err != nil {
		return err
	}

	s, err := newStore()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := models.PostRecord{
		PostID:    postID,
		URL:       *url,
		Subreddit: "r/" + subreddit,
		Angle:     angle,
		DraftFile: *draft,
		PostedAt:  now,
		Status:    models.StatusActive,
	}

	// Best effort: grab the initial numbers right away, but never let a
	// fetch failure block logging. Sync picks the post up later.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if m, err := clients.GetRedditClient().FetchPostMetrics(ctx, subreddit, postID); err != nil {
		slog.Warn("[karmatrack] initial fetch failed, metrics stay pending",
			slog.String("error", err.Error()))
	} else {
		rec.Title = m.Title
		rec.Score = &m.Score
		rec.UpvoteRatio = &m.UpvoteRatio
		rec.NumComments = &m.NumComments
		rec.LastChecked = &now
	}

	stored, err := s.Append(context.Background(), rec)
	if err != nil {
		return err
	}
	fmt.Printf("Logged %s (%s, angle %s)\n", stored.PostID, stored.Subreddit, stored.Angle)
	if stored.Score != nil {
		fmt.Printf("Initial metrics: score %d, %d comments\n", *stored.Score, *stored.NumComments)
	}
	return nil
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "refresh every record, ignoring the staleness threshold")
	fs.Parse(args)

	s, err := newStore()
	if err != nil {
		return err
	}
	defer closeValkey()

	sum, err := newOrchestrator(s).Run(context.Background(), *force)
	if err != nil {
		return err
	}
	fmt.Printf("Sync complete: %s\n", sum)
	if sum.RateLimitAborted {
		fmt.Println("Rate limited — the next sync will pick up the remaining records.")
	}
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	month := fs.String("month", time.Now().UTC().Format("2006-01"), "period to report on (YYYY-MM)")
	fs.Parse(args)

	s, err := newStore()
	if err != nil {
		return err
	}

	rep, err := report.BuildMonthly(context.Background(), s, *month)
	if err != nil {
		return err
	}
	markdown := report.RenderMarkdown(rep)

	writer, err := store.NewReportWriter(dataDir())
	if err != nil {
		return err
	}
	path, err := writer.Write(rep.Period, markdown, report.RenderHTML(markdown), models.ReportMeta{
		GeneratedAt: time.Now().UTC(),
		Records:     len(rep.Rows),
		Pending:     len(rep.Rows) - rep.Scored,
	})
	if err != nil {
		return err
	}

	os.Stdout.Write(markdown)
	fmt.Printf("\nReport saved: %s\n", path)
	return nil
}

func runProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "subreddit name (required)")
	subscribers := fs.Int("subscribers", 0, "subscriber count")
	activity := fs.String("activity", "medium", "activity level: high, medium or low")
	promo := fs.String("promo", "", "self promotion rules")
	bestAngle := fs.String("best-angle", "mixed", "angle that works best here, or mixed")
	notes := fs.String("notes", "", "free-form research notes")
	fs.Parse(args)

	if *name == "" {
		return errors.New("--name is required")
	}
	switch *activity {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("invalid activity %q (must be high, medium or low)", *activity)
	}
	if *bestAngle != "mixed" {
		if _, err := models.ParseAngle(*bestAngle); err != nil {
			return err
		}
	}

	s, err := newStore()
	if err != nil {
		return err
	}
	p := models.SubredditProfile{
		Subreddit:   normalizeSubreddit(*name),
		Subscribers: *subscribers,
		Activity:    *activity,
		PromoRules:  *promo,
		BestAngle:   *bestAngle,
		Notes:       *notes,
		LastUpdated: time.Now().UTC(),
	}
	if err := s.UpsertProfile(context.Background(), p); err != nil {
		return err
	}
	fmt.Printf("Saved profile for %s\n", p.Subreddit)
	return nil
}

func runResearch(args []string) error {
	fs := flag.NewFlagSet("research", flag.ExitOnError)
	name := fs.String("subreddit", "", "subreddit to research (required)")
	posts := fs.Int("posts", 5, "number of recent hot posts to list")
	fs.Parse(args)

	if *name == "" {
		return errors.New("--subreddit is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rc := clients.GetRedditClient()
	info, err := rc.FetchSubredditInfo(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("%s — %d subscribers, %d active now\n", info.Name, info.Subscribers, info.ActiveUsers)
	if info.Description != "" {
		fmt.Printf("  %s\n", info.Description)
	}
	fmt.Printf("  text posts: %v | link posts: %v | over 18: %v\n",
		info.AllowText, info.AllowLink, info.Over18)

	if *posts > 0 {
		listing, err := rc.FetchSubredditPosts(ctx, *name, "hot", *posts)
		if err != nil {
			return err
		}
		fmt.Println("\nRecent hot posts:")
		for i, p := range listing {
			fmt.Printf("  %d. [%d↑, %d comments] %s\n", i+1, p.Score, p.NumComments, p.Title)
		}
	}

	s, err := newStore()
	if err != nil {
		return err
	}
	profile := models.SubredditProfile{
		Subreddit:   info.Name,
		Subscribers: info.Subscribers,
		Activity:    activityLevel(info.ActiveUsers),
		BestAngle:   "mixed",
		LastUpdated: time.Now().UTC(),
	}
	// Keep manually researched fields when the profile already exists.
	if existing, err := s.Profiles(ctx); err == nil {
		for _, p := range existing {
			if p.Subreddit == profile.Subreddit {
				profile.PromoRules = p.PromoRules
				profile.BestAngle = p.BestAngle
				profile.Notes = p.Notes
				break
			}
		}
	}
	if err := s.UpsertProfile(ctx, profile); err != nil {
		return err
	}
	fmt.Printf("\nProfile for %s refreshed\n", profile.Subreddit)
	return nil
}

func runStatus() error {
	s, err := newStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	recs, err := s.List(ctx)
	if err != nil {
		return err
	}
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return err
	}

	active, unreachable, scored := 0, 0, 0
	scoreSum, topScore := 0, 0
	topSubreddit := ""
	for _, rec := range recs {
		if rec.Status == models.StatusUnreachable {
			unreachable++
			continue
		}
		active++
		if rec.Score != nil {
			scored++
			scoreSum += *rec.Score
			if *rec.Score > topScore || topSubreddit == "" {
				topScore = *rec.Score
				topSubreddit = rec.Subreddit
			}
		}
	}

	fmt.Println("karmatrack status")
	fmt.Printf("  posts logged:   %d (%d unreachable)\n", active, unreachable)
	if scored > 0 {
		fmt.Printf("  average score:  %.1f over %d fetched\n", float64(scoreSum)/float64(scored), scored)
		fmt.Printf("  top score:      %d (%s)\n", topScore, topSubreddit)
	} else {
		fmt.Println("  no fetched metrics yet — run sync")
	}
	fmt.Printf("  profiles:       %d\n", len(profiles))

	if writer, err := store.NewReportWriter(dataDir()); err == nil {
		if period, ok := writer.LatestPeriod(); ok {
			fmt.Printf("  latest report:  %s\n", period)
		}
	}
	return nil
}

func runRepair() error {
	if backend := config.Getenv("TRACKER_STORE_BACKEND", "file"); backend != "file" {
		return fmt.Errorf("repair only applies to the file backend (current: %s)", backend)
	}
	fs, err := store.NewFileStore(dataDir())
	if err != nil {
		return err
	}
	res, err := fs.RepairPosts(time.Now().UTC())
	if err != nil {
		return err
	}
	if res.BackupPath != "" {
		fmt.Printf("Backed up previous log: %s\n", res.BackupPath)
	}
	if res.Reinitialized {
		fmt.Println("Log was unreadable and has been reinitialized empty.")
		return nil
	}
	fmt.Printf("Repair done: kept %d, normalized %d, dropped %d\n",
		res.Kept, res.Normalized, res.Dropped)
	return nil
}

func runWatch() error {
	s, err := newStore()
	if err != nil {
		return err
	}
	defer closeValkey()
	orch := newOrchestrator(s)

	sched := scheduler.New()
	spec := config.Getenv("WATCH_SCHEDULE", "@every 6h")
	err = sched.Add("sync", spec, func(ctx context.Context) error {
		sum, err := orch.Run(ctx, false)
		if errors.Is(err, refresh.ErrLocked) {
			slog.Info("[karmatrack] previous sync still running, skipping this tick")
			return nil
		}
		if err != nil {
			return err
		}
		slog.Info("[karmatrack] scheduled sync finished", slog.String("summary", sum.String()))
		return nil
	})
	if err != nil {
		return err
	}

	sched.Start()
	slog.Info("[karmatrack] watching", slog.String("schedule", spec))

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	<-stopChan

	slog.Info("[karmatrack] shutting down")
	sched.Stop()
	return nil
}

func closeValkey() {
	if clients.ValkeyEnabled() {
		clients.CloseValkey()
	}
}

func activityLevel(activeUsers int) string {
	switch {
	case activeUsers >= 1000:
		return "high"
	case activeUsers >= 100:
		return "medium"
	default:
		return "low"
	}
}

func normalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "r/") {
		return name
	}
	return "r/" + name
}
