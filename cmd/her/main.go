package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/client"
	"github.com/mrwolf/her-server/internal/config"
	"github.com/mrwolf/her-server/internal/db"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/message"
	"github.com/mrwolf/her-server/internal/selector"
	"github.com/mrwolf/her-server/internal/session"
)

func main() {
	verbose := flag.Bool("v", false, "log tier and persistence failures to stderr")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "her:", err)
		os.Exit(1)
	}

	log := logger.Nop()
	if *verbose {
		if log, err = logger.New(cfg.LogMode); err != nil {
			fmt.Fprintln(os.Stderr, "her:", err)
			os.Exit(1)
		}
	}
	defer log.Sync()

	userID, err := deviceID(cfg.UserFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "her: device id:", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LocalDBPath), 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "her: local store:", err)
		os.Exit(1)
	}
	local, err := db.Open(cfg.LocalDBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "her: local store:", err)
		os.Exit(1)
	}
	defer local.Close()

	api := client.New(cfg.APIBase)
	store := &history.FallbackStore{Primary: api, Local: local, Log: log}
	cat := catalog.Default()

	sel := selector.New(selector.Options{
		Catalog: cat,
		History: store,
		Providers: []selector.Provider{
			&selector.RemoteProvider{Label: "remote", Client: api, Timeout: cfg.GenerationTimeout},
			selector.NewDynamicProvider(cat, nil),
			&selector.StaticProvider{Catalog: cat},
		},
		LoadTimeout: cfg.GenerationTimeout,
		Log:         log,
	})

	ctrl := session.NewController(session.Options{
		UserID:      userID,
		Selector:    sel,
		Messages:    message.New(api, cfg.GenerationTimeout, nil, log),
		Saver:       store,
		SaveTimeout: cfg.GenerationTimeout,
		Themes:      api,
		Catalog:     cat,
		Log:         log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout)
	ctrl.Refresh(ctx)
	cancel()

	r := newREPL(ctrl, store, userID, os.Stdin, os.Stdout)
	r.run(context.Background())
}

// deviceID returns the persisted opaque id, creating it on first use
func deviceID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format("Mon 2 Jan 15:04")
}
