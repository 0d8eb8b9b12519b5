package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/whispie/whispie/internal/app/progression"
	"github.com/whispie/whispie/internal/domain"
)

// ─── Styles ─────────────────────────────────────────────────────────────────

var (
	colorAccent = lipgloss.Color("#a78bfa")
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorDim    = lipgloss.Color("#928374")

	styleHeader = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	styleYellow = lipgloss.NewStyle().Foreground(colorYellow)
	styleRed    = lipgloss.NewStyle().Foreground(colorRed)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleBold   = lipgloss.NewStyle().Bold(true)
	styleBox    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 2)
)

const barWidth = 30

// printer writes command output, styled only when stdout is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &printer{w: w, color: color}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) box(content string) string {
	if !p.color {
		return content
	}
	return styleBox.Render(content)
}

func (p *printer) println(a ...any) {
	fmt.Fprintln(p.w, a...)
}

func (p *printer) printf(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// bar renders pct (0-100) as [=======>......].
func bar(pct int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * barWidth / 100
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	}
	return "[" + strings.Repeat(".", barWidth) + "]"
}

// ─── Renderers ──────────────────────────────────────────────────────────────

func (p *printer) progressCard(v *progression.ProgressView) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n",
		p.style(styleHeader, fmt.Sprintf("Level %d", v.Level)),
		p.style(styleBold, v.Title))
	fmt.Fprintf(&b, "%s %3d%%\n", p.style(styleGreen, bar(v.LevelProgress)), v.LevelProgress)
	fmt.Fprintf(&b, "%d XP  %s\n", v.XP,
		p.style(styleDim, fmt.Sprintf("(%d to level %d)", v.XPToNextLevel, v.Level+1)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Streak        %s\n", p.streakLine(v.Streak))
	fmt.Fprintf(&b, "Longest       %d days\n", v.Streak.Longest)
	fmt.Fprintf(&b, "Conversations %d\n", v.TotalConversations)
	fmt.Fprintf(&b, "Practice      %d min\n", v.TotalPracticeMinutes)
	fmt.Fprintf(&b, "Achievements  %d/%d", v.UnlockedCount, v.AchievementCount)

	p.println(p.box(b.String()))
	p.println(p.style(styleDim, v.Streak.Message))
}

func (p *printer) streakLine(s progression.StreakView) string {
	line := fmt.Sprintf("%d days", s.Current)
	if s.Current == 0 {
		return p.style(styleRed, line)
	}
	if s.AtRisk {
		return line + " " + p.style(styleYellow, "(practice today to keep it)")
	}
	return line
}

func (p *printer) outcome(o *progression.SessionOutcome) {
	if o.Replayed {
		p.println(p.style(styleDim, "Session "+o.SessionID+" was already recorded."))
	}
	p.printf("+%d XP", o.XPEarned)
	if o.Breakdown != nil {
		p.printf("  %s", p.style(styleDim, fmt.Sprintf("(base %d, first-session bonus %d)",
			o.Breakdown.Base, o.Breakdown.FirstBonus)))
	}
	p.println()
	for _, a := range o.Unlocked {
		p.printf("%s %s %s\n", p.style(styleGreen, "Unlocked"), p.style(styleBold, a.Name),
			p.style(styleDim, fmt.Sprintf("+%d XP", a.XPReward)))
	}
	if o.LeveledUp {
		p.println(p.style(styleHeader, fmt.Sprintf("Level up! You are now level %d.", o.Level)))
	}
	p.printf("Total %d XP, level %d, streak %d\n", o.TotalXP, o.Level, o.Streak)
}

func (p *printer) catalog(defs []domain.AchievementDefinition) {
	groups := progression.GroupAchievements(defs, nil)
	for i, g := range groups {
		if i > 0 {
			p.println()
		}
		p.println(p.style(styleHeader, strings.ToUpper(string(g.Category))))
		for _, a := range g.Achievements {
			p.printf("  %-24s %-26s %s\n", a.Key, a.Name, p.style(styleDim, fmt.Sprintf("+%d XP", a.XPReward)))
		}
	}
}

func (p *printer) achievementGroups(groups []progression.AchievementGroup) {
	for i, g := range groups {
		if i > 0 {
			p.println()
		}
		p.println(p.style(styleHeader, strings.ToUpper(string(g.Category))))
		for _, a := range g.Achievements {
			mark := p.style(styleDim, "[ ]")
			when := ""
			if a.Unlocked {
				mark = p.style(styleGreen, "[x]")
				if a.UnlockedAt != nil {
					when = p.style(styleDim, a.UnlockedAt.Format("2006-01-02"))
				}
			}
			p.printf("  %s %-26s %6s  %s\n", mark, a.Name, fmt.Sprintf("+%d", a.XPReward), when)
		}
	}
}

func (p *printer) levels(steps []progression.LevelStep) {
	p.printf("%s\n", p.style(styleBold, fmt.Sprintf("%-6s %10s  %s", "LEVEL", "XP", "TITLE")))
	for _, s := range steps {
		p.printf("%-6d %10d  %s\n", s.Level, s.XPRequired, s.Title)
	}
}
