package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"fetchbot/internal/daemon"
	"fetchbot/internal/deps"
	"fetchbot/internal/history"
	"fetchbot/internal/job"
)

func statusLines(status daemon.Status, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Fetchbot", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Fetchbot", statusError, "Not running", colorize))
	}
	sched := status.Scheduler
	queueKind := statusOK
	if sched.MaxQueueLength > 0 && sched.QueueLength >= sched.MaxQueueLength {
		queueKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d running of %d", sched.RunningJobs, sched.Workers), colorize),
		renderStatusLine("Queue", queueKind, fmt.Sprintf("%d waiting (max %d)", sched.QueueLength, sched.MaxQueueLength), colorize),
		renderStatusLine("Sessions", statusInfo, fmt.Sprintf("%d active", status.Sessions), colorize),
		renderStatusLine("Resolver cache", statusInfo, fmt.Sprintf("%d/%d entries, %d hits, %d misses",
			status.Resolver.Entries, status.Resolver.Capacity, status.Resolver.Hits, status.Resolver.Misses), colorize),
	)
	eph := sched.Ephemeral
	ephKind := statusOK
	if eph.QuotaBytes > 0 && eph.UsedBytes*10 >= eph.QuotaBytes*9 {
		ephKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Ephemeral storage", ephKind,
		fmt.Sprintf("%s of %s reserved", humanize.Bytes(uint64(max(eph.UsedBytes, 0))), humanize.Bytes(uint64(max(eph.QuotaBytes, 0)))), colorize))
	if sched.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, sched.LastError, colorize))
	}

	if len(sched.StageHealth) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Stages", colorize)...)
		names := make([]string, 0, len(sched.StageHealth))
		for name := range sched.StageHealth {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			health := sched.StageHealth[name]
			if health.Ready {
				lines = append(lines, renderStatusLine(name, statusOK, health.Status(), colorize))
			} else {
				lines = append(lines, renderStatusLine(name, statusError, health.Status(), colorize))
			}
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			switch {
			case dep.Version != "":
				message = fmt.Sprintf("Ready (%s, version %s)", dep.Command, dep.Version)
			case dep.Command != "":
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func jobRows(jobs []job.Snapshot) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			shortID(j.ID),
			fmt.Sprint(j.UserID),
			string(j.State),
			progressCell(j.Progress),
			j.Title,
			j.FormatLabel,
		})
	}
	return rows
}

func progressCell(p job.Progress) string {
	switch {
	case p.Percent >= 0 && p.Total > 0:
		return fmt.Sprintf("%.0f%% (%s)", p.Percent, humanize.Bytes(uint64(p.Total)))
	case p.Percent >= 0:
		return fmt.Sprintf("%.0f%%", p.Percent)
	case p.Bytes > 0:
		return humanize.Bytes(uint64(p.Bytes))
	default:
		return "-"
	}
}

func historyRows(outcomes []history.Outcome, now time.Time) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		result := string(o.State)
		if o.ErrorKind != "" {
			result += " (" + o.ErrorKind + ")"
		}
		rows = append(rows, []string{
			humanize.RelTime(o.FinishedAt, now, "ago", "from now"),
			result,
			o.Title,
			o.FormatLabel,
			humanize.Bytes(uint64(max(o.BytesTransferred, 0))),
			o.Duration().Round(time.Second).String(),
		})
	}
	return rows
}

func historySummary(counts map[string]int) string {
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, state := range states {
		parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(counts[state])), state))
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
