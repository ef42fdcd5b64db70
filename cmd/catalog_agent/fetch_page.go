package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yshsolar/catalog-pipeline/internal/fetch"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
)

func newFetchPageCmd(g *globalOptions) *cobra.Command {
	var (
		source     string
		urlStr     string
		useBrowser bool
		waitFor    string
		maxAge     time.Duration
		timeout    time.Duration
		cookie     string
	)
	cmd := &cobra.Command{
		Use:   "fetch-page",
		Short: "Save a distributor portal page under raw/<source>/ for the HTML adapter",
		Long: `Downloads a product listing page and saves it atomically as raw/<source>/<slug>.html.
The detected storefront platform and suggested html_selectors are printed so the source can be
added to catalog.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(g.catalogRoot)
			if err != nil {
				return infrastructure(fmt.Errorf("invalid catalog root: %w", err))
			}
			logger, err := logging.New(g.verbose)
			if err != nil {
				return infrastructure(err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := &fetch.SaveOptions{
				Fetch:        fetch.DefaultOptions(),
				AllowBrowser: useBrowser,
				WaitFor:      waitFor,
				MaxAge:       maxAge,
				Logger:       logger,
			}
			if timeout > 0 {
				opts.Fetch.Timeout = timeout
			}
			if cookie == "" {
				cookie = os.Getenv("CATALOG_PORTAL_COOKIE")
			}
			opts.Fetch.Cookie = cookie
			snap, err := fetch.SavePage(ctx, root, source, urlStr, opts)
			if err != nil {
				return infrastructure(err)
			}

			out := cmd.OutOrStdout()
			status := "downloaded"
			switch {
			case snap.FromCache:
				status = "reused"
			case snap.Rendered:
				status = "rendered"
			}
			_, _ = fmt.Fprintf(out, "%s %s (%d bytes, %s)\n", status, snap.Path, snap.Bytes, snap.Platform)
			if snap.Selectors != nil {
				data, err := yaml.Marshal(map[string]any{"html_selectors": snap.Selectors})
				if err != nil {
					return infrastructure(err)
				}
				_, _ = fmt.Fprintf(out, "suggested selectors:\n%s", data)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name (the page is saved under raw/<source>/)")
	cmd.Flags().StringVarP(&urlStr, "url", "u", "", "Page URL")
	cmd.Flags().BoolVar(&useBrowser, "use-browser", false, "Render with headless Chrome when the page looks empty (requires Chrome)")
	cmd.Flags().StringVar(&waitFor, "wait-for", "", "CSS selector the browser waits for before capturing")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Reuse a saved page younger than this")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (default from fetch options)")
	cmd.Flags().StringVar(&cookie, "cookie", "", "Cookie header for portals behind a login (defaults to CATALOG_PORTAL_COOKIE env var)")

	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
