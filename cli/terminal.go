package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

const minTerminalWidth = 40

// terminalWidth is the width of w when it is a terminal, or 0 when output should not be fitted.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	return max(width, minTerminalWidth)
}

// fitPath shortens path from the left so that it takes at most room columns. The filename end of a
// path is the part worth keeping.
func fitPath(path string, room int) string {
	runes := []rune(path)
	if room <= 0 || len(runes) <= room {
		return path
	}
	if room == 1 {
		return "…"
	}
	return "…" + string(runes[len(runes)-room+1:])
}
