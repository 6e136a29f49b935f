package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard/internal/api"
	"dashboard/internal/chart"
	"dashboard/internal/config"
	"dashboard/internal/dashboard"
	"dashboard/internal/engine"
	"dashboard/internal/render"

	"github.com/labstack/gommon/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func setupLogging(level string) (log.Lvl, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return 0, err
	}
	log.SetLevel(lvl)
	log.SetOutput(colorable.NewColorableStdout())
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.EnableColor()
	} else {
		log.DisableColor()
	}
	return lvl, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	lvl, err := setupLogging(cfg.LogLevel)
	if err != nil {
		return err
	}

	// 1. Load the dataset. Any DataLoadError stops here, before the
	// server accepts requests.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t0 := time.Now()
	store, err := engine.Load(ctx, cfg.RecordsPath, cfg.PositionsPath)
	if err != nil {
		return err
	}
	log.Infof("Dataset ready in %v", time.Since(t0))

	defaults := cfg.Defaults
	if defaults.Country == "" {
		if countries := store.Countries(); len(countries) > 0 {
			defaults.Country = countries[0]
		}
	}

	// 2. Wire builders, renderers and the dispatch table.
	builder := chart.NewBuilder(store, chart.Options{
		BasemapURL: cfg.BasemapURL,
		MapBounds:  cfg.MapBounds,
	})
	primary, err := render.New(render.Format(cfg.Format), cfg.CDN)
	if err != nil {
		return err
	}
	renderers := []render.Renderer{primary}
	for _, f := range []render.Format{render.FormatHTML, render.FormatSVG} {
		if f != primary.Format() {
			r, err := render.New(f, cfg.CDN)
			if err != nil {
				return err
			}
			renderers = append(renderers, r)
		}
	}
	dash, err := dashboard.New(store, builder, defaults, renderers...)
	if err != nil {
		return err
	}

	// 3. Serve until interrupted.
	e := api.NewEcho(api.NewHandler(dash, cfg.CDN), cfg.RateLimit)
	e.Logger.SetLevel(lvl)

	errc := make(chan error, 1)
	go func() {
		log.Infof("Server ready on %s", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func main() {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Serve the Our Changing World dashboard",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	config.AddFlags(root)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
