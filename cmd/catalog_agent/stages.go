package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yshsolar/catalog-pipeline/internal/pipeline"
	"github.com/yshsolar/catalog-pipeline/internal/pipeline/steps"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// stageSpec describes one pipeline subcommand.
type stageSpec struct {
	use   string
	short string
	long  string
	// run returns the number of products held by validation, when the stage knows it.
	run func(ctx context.Context, r *pipeline.Run) (held int, err error)
}

var stageConsolidate = stageSpec{
	use:   steps.Consolidate,
	short: "Ingest, resolve and merge source records into consolidated products",
	long:  "Reads every selected source, resolves categories, manufacturers and fingerprints, merges records of the same product and writes work/consolidate.json.",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		_, err := r.Consolidate(ctx)
		return 0, err
	},
}

var stageNormalize = stageSpec{
	use:   steps.Normalize,
	short: "Derive typed technical specs and parse prices",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		_, err := r.Normalize(ctx, nil)
		return 0, err
	},
}

var stageLinkImages = stageSpec{
	use:   steps.LinkImages,
	short: "Locate product images and store content-addressed variants",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		_, _, err := r.LinkImages(ctx, nil)
		return 0, err
	},
}

var stageEnrich = stageSpec{
	use:   steps.Enrich,
	short: "Fill missing specs from product photos with the configured vision agents",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		_, _, err := r.Enrich(ctx, nil)
		return 0, err
	},
}

var stageValidate = stageSpec{
	use:   steps.Validate,
	short: "Validate products against their category schemas",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		snap, _, err := r.Validate(ctx, nil)
		if err != nil {
			return 0, err
		}
		held := 0
		for _, p := range snap.Products {
			if p.Validation.Status != types.StatusValid {
				held++
			}
		}
		return held, nil
	},
}

var stageIndex = stageSpec{
	use:   steps.Index,
	short: "Publish the unified catalog, master index and integrity report",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		summary, err := r.Index(ctx, nil, nil)
		if err != nil {
			return 0, err
		}
		return summary.Quarantined + summary.Rejected, nil
	},
}

var stageRunAll = stageSpec{
	use:   "run-all",
	short: "Run every stage end to end",
	long:  "Runs consolidate, normalize, link-images, enrich, validate and index in order, keeping work snapshots so a failed run can be resumed stage by stage.",
	run: func(ctx context.Context, r *pipeline.Run) (int, error) {
		summary, err := r.RunAll(ctx)
		if err != nil {
			return 0, err
		}
		return summary.Quarantined + summary.Rejected, nil
	},
}

func newStageCmd(g *globalOptions, spec stageSpec) *cobra.Command {
	long := spec.long
	if long == "" {
		long = spec.short + "."
	}
	return &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, cfg, err := g.newRun(cmd)
			if err != nil {
				return setupError(err)
			}
			defer func() { _ = run.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			held, err := spec.run(ctx, run)
			if err != nil {
				return infrastructure(err)
			}
			if held > 0 && cfg.StrictValidation {
				return &exitError{code: exitHeld, err: fmt.Errorf("strict mode: %d product(s) failed validation", held)}
			}
			return nil
		},
	}
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   steps.Ingest,
		Short: "Read the configured sources and report record counts",
		Long:  "Reads every selected source with its adapter and reports what was found. Raw records are not persisted; consolidate reads the sources again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, _, err := g.newRun(cmd)
			if err != nil {
				return setupError(err)
			}
			defer func() { _ = run.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, issues, err := run.Ingest(ctx)
			if err != nil {
				return infrastructure(err)
			}
			out := cmd.OutOrStdout()
			for _, f := range res.Files {
				_, _ = fmt.Fprintf(out, "  %-12s %-40s %5d records, %d rejected\n", f.Source, f.Path, f.Records, f.Rejected)
			}
			_, _ = fmt.Fprintf(out, "%d records from %d files, %d issues\n", len(res.Products), len(res.Files), len(issues))
			return nil
		},
	}
}
