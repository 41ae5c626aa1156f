package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// terminalNavigator は画面遷移の代わりに端末へ案内を表示する。
type terminalNavigator struct {
	w         io.Writer
	logger    *slog.Logger
	loginPath string

	mu        sync.Mutex
	refreshes int
	lastPush  string
}

func newTerminalNavigator(w io.Writer, logger *slog.Logger, loginPath string) *terminalNavigator {
	return &terminalNavigator{w: w, logger: logger, loginPath: loginPath}
}

// Refresh はCLIでは再取得するキャッシュが無いため記録のみ行う。
func (n *terminalNavigator) Refresh() {
	n.mu.Lock()
	n.refreshes++
	n.mu.Unlock()
	n.logger.Debug("auth state refreshed")
}

func (n *terminalNavigator) Push(path string) {
	n.mu.Lock()
	n.lastPush = path
	n.mu.Unlock()

	if path == n.loginPath {
		fmt.Fprintln(n.w, "Jalankan 'srikandi-cli login' untuk masuk kembali.")
		return
	}
	n.logger.Debug("navigate", slog.String("path", path))
}
