package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// ------------------------------------------------------------
// Utility
// ------------------------------------------------------------

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ------------------------------------------------------------
// Banner
// ------------------------------------------------------------

func PrintBanner(w io.Writer) {
	banner := `
  ______            __             __  ____  _ __      __
 / ____/___  ____  / /____  ____  / /_/ __ \(_) /___  / /_
/ /   / __ \/ __ \/ __/ _ \/ __ \/ __/ /_/ / / / __ \/ __/
/ /___/ /_/ / / / / /_/  __/ / / / /_/ ____/ / / /_/ / /_
\____/\____/_/ /_/\__/\___/_/ /_/\__/_/   /_/_/\____/\__/

        >> CONTENT OPERATIONS ONBOARDING <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// ------------------------------------------------------------
// Progress line
// ------------------------------------------------------------

// PrintProgress writes a one-line wizard progress bar: completed of total
// steps, the active step label and the current phase.
func PrintProgress(w io.Writer, completed, total int, label string) {
	phase, task, _ := GetStatus()

	barWidth := clamp(termWidth()/4, 10, 30)
	filled := 0
	if total > 0 {
		filled = clamp(completed*barWidth/total, 0, barWidth)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("▒", barWidth-filled)

	displayTask := task
	if len(displayTask) > 25 {
		displayTask = displayTask[:22] + "..."
	}

	fmt.Fprintf(w, "%s[%s]%s %d/%d %s%-14s%s %s %s[%v]%s\n",
		colorNeonCyan, bar, colorReset,
		completed, total,
		colorNeonMag, label, colorReset,
		phase, colorPurple, time.Since(startTime).Round(time.Second), colorReset,
	)
	if displayTask != "" {
		fmt.Fprintf(w, "  %s\n", displayTask)
	}
}
