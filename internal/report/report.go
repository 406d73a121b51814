// Package report aggregates a month of post records into the performance
// report. Everything here is deterministic: the same records always
// produce byte-identical markdown, which is what makes regenerated
// reports comparable.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"

	"github.com/spacesedan/karmatrack/internal/models"
	"github.com/spacesedan/karmatrack/internal/store"
)

// ErrNoData is returned when the requested month has no records at all.
var ErrNoData = errors.New("no records in period")

// BuildMonthly computes the report for one calendar month (period format
// YYYY-MM). Records without fetched metrics are included as pending rows
// but excluded from every average.
func BuildMonthly(ctx context.Context, s store.Store, period string) (models.Report, error) {
	if _, err := time.Parse("2006-01", period); err != nil {
		return models.Report{}, fmt.Errorf("invalid period %q (want YYYY-MM): %w", period, err)
	}

	recs, err := s.List(ctx)
	if err != nil {
		return models.Report{}, err
	}

	var month []models.PostRecord
	for _, rec := range recs {
		if rec.PostedAt.UTC().Format("2006-01") == period {
			month = append(month, rec)
		}
	}
	if len(month) == 0 {
		return models.Report{}, fmt.Errorf("%w: %s", ErrNoData, period)
	}

	rows := make([]models.ReportRow, 0, len(month))
	for _, rec := range month {
		rows = append(rows, models.ReportRow{
			Title:       rec.Title,
			Subreddit:   rec.Subreddit,
			Angle:       rec.Angle,
			Score:       rec.Score,
			NumComments: rec.NumComments,
			UpvoteRatio: rec.UpvoteRatio,
			PostedAt:    rec.PostedAt.UTC(),
			Pending:     rec.Score == nil,
		})
	}
	sortRows(rows)

	rep := models.Report{
		Period: period,
		Rows:   rows,
	}

	scored := filterScored(rows)
	rep.Scored = len(scored)
	rep.Insights = buildInsights(rows, scored)
	rep.Recommendations = buildRecommendations(scored, rep.Insights)
	return rep, nil
}

// sortRows orders by score descending; pending rows go last. Ties break
// toward the earlier post so the order is total.
func sortRows(rows []models.ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Pending != b.Pending {
			return !a.Pending
		}
		if a.Pending {
			return a.PostedAt.Before(b.PostedAt)
		}
		if *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		return a.PostedAt.Before(b.PostedAt)
	})
}

func filterScored(rows []models.ReportRow) []models.ReportRow {
	var scored []models.ReportRow
	for _, r := range rows {
		if !r.Pending {
			scored = append(scored, r)
		}
	}
	return scored
}

func buildInsights(rows, scored []models.ReportRow) models.Insights {
	var ins models.Insights
	ins.TitleSentiment = angleSentiments(rows)
	if len(scored) == 0 {
		return ins
	}

	bySub := groupAvg(scored, func(r models.ReportRow) string { return r.Subreddit })
	ins.BestSubreddit, ins.BestSubredditAvg = maxAvg(bySub)
	for _, r := range scored {
		if r.Subreddit == ins.BestSubreddit {
			ins.BestSubredditPosts++
		}
	}

	byAngle := groupAvg(scored, func(r models.ReportRow) string { return string(r.Angle) })
	best, bestAvg := maxAvg(byAngle)
	ins.BestAngle, ins.BestAngleAvg = models.Angle(best), bestAvg
	if len(byAngle) > 1 {
		worst, worstAvg := minAvg(byAngle)
		ins.WorstAngle, ins.WorstAngleAvg = models.Angle(worst), worstAvg
		ins.HasAngleComparison = true
	}

	byDay := groupAvg(scored, func(r models.ReportRow) string {
		// Monday..Sunday sort lexicographically badly; key on the index
		// so ties resolve toward the earlier weekday.
		return fmt.Sprintf("%d", int(r.PostedAt.Weekday()))
	})
	day, dayAvg := maxAvg(byDay)
	var weekday int
	fmt.Sscanf(day, "%d", &weekday)
	ins.BestWeekday, ins.BestWeekdayAvg = time.Weekday(weekday), dayAvg

	top := scored[0]
	for _, r := range scored[1:] {
		if *r.Score > *top.Score || (*r.Score == *top.Score && r.PostedAt.Before(top.PostedAt)) {
			top = r
		}
	}
	ins.TopPost = top

	var scoreSum, commentSum, ratioSum float64
	ratios := 0
	for _, r := range scored {
		scoreSum += float64(*r.Score)
		if r.NumComments != nil {
			commentSum += float64(*r.NumComments)
		}
		if r.UpvoteRatio != nil {
			ratioSum += *r.UpvoteRatio
			ratios++
		}
	}
	ins.AvgScore = scoreSum / float64(len(scored))
	ins.AvgComments = commentSum / float64(len(scored))
	if ratios > 0 {
		ins.AvgUpvoteRatio = ratioSum / float64(ratios)
	}
	return ins
}

func angleSentiments(rows []models.ReportRow) []models.AngleSentiment {
	sums := make(map[models.Angle]float64)
	counts := make(map[models.Angle]int)
	for _, r := range rows {
		if r.Title == "" {
			continue
		}
		sums[r.Angle] += titleSentiment(r.Title)
		counts[r.Angle]++
	}

	angles := make([]models.Angle, 0, len(counts))
	for a := range counts {
		angles = append(angles, a)
	}
	sort.Slice(angles, func(i, j int) bool { return angles[i] < angles[j] })

	out := make([]models.AngleSentiment, 0, len(angles))
	for _, a := range angles {
		avg := sums[a] / float64(counts[a])
		out = append(out, models.AngleSentiment{Angle: a, Score: avg, Label: sentimentLabel(avg)})
	}
	return out
}

func buildRecommendations(scored []models.ReportRow, ins models.Insights) []string {
	if len(scored) < 2 {
		return []string{"Not enough fetched data for recommendations yet; log more posts and run sync."}
	}

	var recs []string
	if ins.HasAngleComparison && ins.BestAngleAvg > ins.WorstAngleAvg*1.5 {
		ratio := ins.BestAngleAvg / ins.WorstAngleAvg
		if ins.WorstAngleAvg < 0.1 {
			ratio = ins.BestAngleAvg / 0.1
		}
		recs = append(recs, fmt.Sprintf(
			"Your %s posts outperform %s posts by %.1fx on average score; prefer the %s framing next.",
			ins.BestAngle, ins.WorstAngle, ratio, ins.BestAngle))
	}

	discussed := 0
	for _, r := range scored {
		if r.NumComments != nil && *r.NumComments > 10 && *r.Score < 5 {
			discussed++
		}
	}
	if discussed > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d post(s) drew heavy discussion but a low score; the content lands, the titles may not.",
			discussed))
	}

	if len(recs) == 0 {
		recs = append(recs, "Keep the current strategy; the data is still accumulating.")
	}
	return recs
}

func groupAvg(rows []models.ReportRow, key func(models.ReportRow) string) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range rows {
		k := key(r)
		sums[k] += float64(*r.Score)
		counts[k]++
	}
	avg := make(map[string]float64, len(sums))
	for k := range sums {
		avg[k] = sums[k] / float64(counts[k])
	}
	return avg
}

// maxAvg picks the highest average; ties go to the lexicographically
// smaller key so repeated runs agree.
func maxAvg(avgs map[string]float64) (string, float64) {
	keys := sortedKeys(avgs)
	best, bestAvg := "", 0.0
	for _, k := range keys {
		if best == "" || avgs[k] > bestAvg {
			best, bestAvg = k, avgs[k]
		}
	}
	return best, bestAvg
}

func minAvg(avgs map[string]float64) (string, float64) {
	keys := sortedKeys(avgs)
	worst, worstAvg := "", 0.0
	for _, k := range keys {
		if worst == "" || avgs[k] < worstAvg {
			worst, worstAvg = k, avgs[k]
		}
	}
	return worst, worstAvg
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderMarkdown produces the comparable report body. No timestamps in
// here; the generated-at stamp travels in the sidecar meta file.
func RenderMarkdown(rep models.Report) []byte {
	var b strings.Builder

	pending := len(rep.Rows) - rep.Scored
	fmt.Fprintf(&b, "# Reddit posting report — %s\n\n", rep.Period)
	fmt.Fprintf(&b, "**Posts**: %d", len(rep.Rows))
	if pending > 0 {
		fmt.Fprintf(&b, " (%d pending metrics)", pending)
	}
	b.WriteString("\n\n## Overview\n\n")
	b.WriteString("| Title | Subreddit | Score | Comments | Upvotes | Angle | Posted |\n")
	b.WriteString("|-------|-----------|-------|----------|---------|-------|--------|\n")
	for _, r := range rep.Rows {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		if runes := []rune(title); len(runes) > 40 {
			title = string(runes[:40]) + "…"
		}
		score, comments, upvotes := "pending", "-", "-"
		if !r.Pending {
			score = fmt.Sprintf("%d", *r.Score)
			if r.NumComments != nil {
				comments = fmt.Sprintf("%d", *r.NumComments)
			}
			if r.UpvoteRatio != nil {
				upvotes = fmt.Sprintf("%.0f%%", *r.UpvoteRatio*100)
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			escapePipes(title), r.Subreddit, score, comments, upvotes, r.Angle,
			r.PostedAt.Format("2006-01-02"))
	}

	b.WriteString("\n## Insights\n\n")
	if rep.Scored == 0 {
		b.WriteString("No fetched metrics in this period yet; run sync first.\n")
	} else {
		ins := rep.Insights
		n := 0
		item := func(format string, args ...any) {
			n++
			fmt.Fprintf(&b, "%d. ", n)
			fmt.Fprintf(&b, format, args...)
			b.WriteString("\n")
		}
		item("**Best subreddit**: %s (avg score %.1f across %d post(s))",
			ins.BestSubreddit, ins.BestSubredditAvg, ins.BestSubredditPosts)
		if ins.HasAngleComparison {
			item("**Best angle**: %s (avg %.1f vs %s at %.1f)",
				ins.BestAngle, ins.BestAngleAvg, ins.WorstAngle, ins.WorstAngleAvg)
		}
		item("**Best posting day**: %s (avg score %.1f)", ins.BestWeekday, ins.BestWeekdayAvg)
		topTitle := ins.TopPost.Title
		if topTitle == "" {
			topTitle = "(untitled)"
		}
		item("**Top post**: “%s” (%d points, %s)", escapePipes(topTitle), *ins.TopPost.Score, ins.TopPost.Subreddit)
		item("**Averages**: score %.1f | comments %.1f | upvote ratio %.0f%%",
			ins.AvgScore, ins.AvgComments, ins.AvgUpvoteRatio*100)
		for _, s := range ins.TitleSentiment {
			item("**Title sentiment (%s)**: %s (%.2f)", s.Angle, s.Label, s.Score)
		}
	}

	b.WriteString("\n## Recommendations\n\n")
	for i, rec := range rep.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}

	return []byte(b.String())
}

// RenderHTML wraps the blackfriday rendering of the markdown body.
func RenderHTML(markdown []byte) []byte {
	body := blackfriday.Run(markdown)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"></head>\n<body>\n")
	b.Write(body)
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
