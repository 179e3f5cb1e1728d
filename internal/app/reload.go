package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dshills/replhost/internal/config/watcher"
	"github.com/dshills/replhost/internal/repl"
)

// startWatcher reloads the configuration whenever its file changes.
func (app *Application) startWatcher() error {
	dir := filepath.Dir(app.opts.ConfigPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		app.log.Debug("not watching %s: directory missing", app.opts.ConfigPath)
		return nil
	}

	w, err := watcher.New(watcher.WithErrorHandler(func(err error) {
		app.log.WithComponent("watcher").Warn("%v", err)
	}))
	if err != nil {
		return err
	}
	w.OnChange(app.onConfigChange)

	if err := w.Watch(app.opts.ConfigPath); err != nil {
		_ = w.Close()
		return err
	}
	app.watcher = w
	return nil
}

func (app *Application) onConfigChange(ev watcher.Event) {
	log := app.log.WithComponent("watcher")
	if ev.Op == watcher.OpRemove {
		log.Info("%s removed; keeping current settings", ev.Path)
		return
	}
	if err := app.Reload(app.ctx); err != nil {
		log.Warn("reload %s: %v", ev.Path, err)
	}
}

// Reload re-reads the configuration. A running session is replaced so the
// new settings take effect; its exit is expected and not reported.
func (app *Application) Reload(ctx context.Context) error {
	cfg, err := app.loadConfig()
	if err != nil {
		return err
	}

	app.mu.Lock()
	app.cfg = cfg
	app.mu.Unlock()

	app.log.SetLevel(ParseLogLevel(cfg.Log.Level))
	app.eval.UpdateConfig(cfg)
	app.log.Info("configuration reloaded from %s", app.opts.ConfigPath)

	switch app.eval.State() {
	case repl.StateConnecting, repl.StateReady:
		_, err = app.eval.Reset(ctx)
		return err
	}
	return nil
}
