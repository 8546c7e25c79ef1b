package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/locale"
	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

// progressPrinter writes at most one line per stage each interval, plus the
// final line of every stage.
type progressPrinter struct {
	w        io.Writer
	lang     string
	interval time.Duration
	now      func() time.Time
	last     map[string]time.Time
}

func newProgressPrinter(w io.Writer, lang string) *progressPrinter {
	return &progressPrinter{
		w:        w,
		lang:     lang,
		interval: time.Second,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (p *progressPrinter) report(pr reports.Progress) {
	now := p.now()
	finished := pr.Done >= pr.Total
	if last, seen := p.last[pr.Stage]; seen && !finished && now.Sub(last) < p.interval {
		return
	}
	p.last[pr.Stage] = now
	fmt.Fprintln(p.w, p.format(pr))
}

func (p *progressPrinter) format(pr reports.Progress) string {
	label := p.stageLabel(pr.Stage)
	if pr.Done >= pr.Total {
		return locale.Format(p.lang, locale.ProgressDone, "label", label, "done", pr.Done, "total", pr.Total)
	}

	remaining := locale.Text(p.lang, locale.RemainingLess)
	if pr.Remaining >= time.Second {
		secs := strconv.FormatFloat(pr.Remaining.Seconds(), 'f', 1, 64)
		remaining = locale.Format(p.lang, locale.RemainingSecs, "seconds", secs)
	}
	return locale.Format(p.lang, locale.ProgressFormat,
		"label", label, "done", pr.Done, "total", pr.Total, "remaining", remaining)
}

func (p *progressPrinter) stageLabel(stage string) string {
	switch stage {
	case reports.StageScan:
		return locale.Text(p.lang, locale.StageScan)
	case reports.StageCompute:
		return locale.Text(p.lang, locale.StageCompute)
	default:
		return stage
	}
}
