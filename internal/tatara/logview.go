package tatara

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ulikunitz/xz"
	"golang.org/x/term"
)

// readArchivedLogs decompresses all archived step logs for one asset and
// architecture, in step order (download, build, install, then anything
// else alphabetically).
func readArchivedLogs(asset, arch string) ([]string, error) {
	dir := filepath.Join(LogStore, fmt.Sprintf("%s@%s", asset, arch))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("no build logs found for %s/%s", asset, arch)
	}

	order := map[string]int{"download": 0, "build": 1, "install": 2}
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".log.xz") {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		si := strings.TrimSuffix(names[i], ".log.xz")
		sj := strings.TrimSuffix(names[j], ".log.xz")
		oi, iok := order[si]
		oj, jok := order[sj]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return si < sj
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("no build logs found for %s/%s", asset, arch)
	}

	var lines []string
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		data, err := io.ReadAll(xr)
		f.Close()
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("=== %s ===", strings.TrimSuffix(name, ".xz")))
		lines = append(lines, strings.Split(strings.TrimRight(string(data), "\n"), "\n")...)
	}
	return lines, nil
}

// handleLogCommand shows the archived logs for one asset/architecture,
// piped to a pager when possible.
func handleLogCommand(asset, arch string) error {
	lines, err := readArchivedLogs(asset, arch)
	if err != nil {
		return err
	}
	content := strings.Join(lines, "\n") + "\n"

	pager := os.Getenv("PAGER")
	var args []string
	if pager == "" {
		pager = "less"
		args = []string{"-r"}
	} else if pager == "less" {
		args = []string{"-r"}
	}

	cmd := exec.Command(pager, args...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		// Fallback to plain stdout if the pager fails
		fmt.Print(content)
	}
	return nil
}

// runLogBrowser opens a scrollable TUI over all archived logs, one tab per
// asset@arch directory under the log store. Left/Right switch tabs.
func runLogBrowser() int {
	entries, err := os.ReadDir(LogStore)
	if err != nil || len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No archived build logs found")
		return 1
	}

	var tabs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(entry.Name(), "@") {
			tabs = append(tabs, entry.Name())
		}
	}
	sort.Strings(tabs)
	if len(tabs) == 0 {
		fmt.Fprintln(os.Stderr, "No archived build logs found")
		return 1
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Log browser requires a terminal; use the log command instead")
		return 1
	}

	app := tview.NewApplication()
	activeIdx := 0

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true)
	logView.SetBorder(true)

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	header.SetBorder(true)
	header.SetTitle("tatara Build Log Viewer")

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]←/→ switch log, ↑/↓ scroll, Home/End jump. 'q' or Esc to quit.[white]")

	show := func() {
		name := tabs[activeIdx]
		parts := strings.SplitN(name, "@", 2)
		logView.Clear()
		lines, err := readArchivedLogs(parts[0], parts[1])
		if err != nil {
			fmt.Fprintf(logView, "[red]%v[white]", err)
		} else {
			fmt.Fprint(tview.ANSIWriter(logView), strings.Join(lines, "\n"))
		}
		var titles []string
		for i, tab := range tabs {
			if i == activeIdx {
				titles = append(titles, fmt.Sprintf("[black:yellow] %s [-:-]", tab))
			} else {
				titles = append(titles, fmt.Sprintf("[white] %s [-]", tab))
			}
		}
		header.SetText(strings.Join(titles, " "))
		logView.ScrollToEnd()
	}
	show()

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(logView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyLeft:
			activeIdx--
			if activeIdx < 0 {
				activeIdx = len(tabs) - 1
			}
			show()
			return nil
		case tcell.KeyRight:
			activeIdx++
			if activeIdx >= len(tabs) {
				activeIdx = 0
			}
			show()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(flex, true).SetFocus(logView).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Log browser failed: %v\n", err)
		return 1
	}
	return 0
}
