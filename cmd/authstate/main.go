// Command authstate signs a real browser into the application under test and
// writes the resulting client storage to a JSON file that later test runs can
// preload.
//
// Usage:
//
//	authstate [--driver playwright|rod] [--headed] [--out auth-state.json] [--upload] [--env-file .env]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kuitang/e2eauth/internal/artifacts"
	"github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/config"
	"github.com/kuitang/e2eauth/internal/errs"
	"github.com/kuitang/e2eauth/internal/login"
	"github.com/kuitang/e2eauth/internal/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	obs.Init()

	flags, err := config.ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return errs.ExitCode(errs.InvalidArgument)
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return errs.ExitCode(errs.InvalidArgument)
	}
	cfg.PrintStartupSummary(stderr)

	ctx = obs.WithDriver(obs.WithRun(ctx, ""), cfg.Driver)
	log := obs.From(ctx).With("pkg", "authstate")

	store, err := artifacts.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Error("artifact_store_unavailable", "error", err)
		return errs.ExitCode(errs.Unavailable)
	}

	session, err := browser.Launch(ctx, browser.LaunchOptions{
		Driver:         cfg.Driver,
		Headless:       cfg.Headless,
		DefaultTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return errs.ExitCode(errs.Unavailable)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("browser_close_failed", "error", err)
		}
	}()

	page, err := session.NewPage()
	if err != nil {
		log.Error("new_page_failed", "error", err)
		return errs.ExitCode(errs.Unavailable)
	}

	orch := login.NewFromConfig(cfg, store)
	defer orch.Close()

	state, err := captureState(ctx, orch, page)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return errs.ExitCode(errs.CodeOf(err))
	}

	var uploadTo artifacts.Store
	if cfg.Upload {
		uploadTo = store
	}
	if err := persistState(ctx, state, cfg.StateFile, uploadTo); err != nil {
		log.Error("persist_state_failed", "error", err)
		return errs.ExitCode(errs.CodeOf(err))
	}
	log.Info("auth_state_written", "path", cfg.StateFile, "origin", state.Origin, "keys", len(state.LocalStorage))
	return 0
}

// captureState ensures a session on page and snapshots the token keys.
func captureState(ctx context.Context, orch *login.Orchestrator, page browser.Page) (browser.StorageState, error) {
	if err := orch.EnsureSession(ctx, page); err != nil {
		return browser.StorageState{}, err
	}
	state, err := browser.SnapshotStorage(page, login.StorageKeys)
	if err != nil {
		return browser.StorageState{}, errs.Wrap(errs.Internal, "snapshot storage: "+err.Error(), err)
	}
	return state, nil
}

// persistState writes state to path and, when store is non-nil, uploads it
// under the run's storage-state key.
func persistState(ctx context.Context, state browser.StorageState, path string, store artifacts.Store) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage state: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if store == nil {
		return nil
	}
	key := artifacts.StorageStateKey(obs.RunIDFromContext(ctx))
	if err := store.Put(ctx, key, data, "application/json"); err != nil {
		return errs.Wrap(errs.Unavailable, "upload storage state: "+err.Error(), err)
	}
	obs.From(ctx).Info("auth_state_uploaded", "pkg", "authstate", "key", key)
	return nil
}
