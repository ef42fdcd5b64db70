// Package main provides the catalog_agent command line for the catalog consolidation pipeline.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yshsolar/catalog-pipeline/internal/pipeline"
)

// Exit codes
const (
	exitOK             = 0
	exitUsage          = 1
	exitHeld           = 2 // --strict and at least one product failed validation
	exitInfrastructure = 3
)

// exitError carries a process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func infrastructure(err error) error {
	return &exitError{code: exitInfrastructure, err: err}
}

// setupError classifies a failure to prepare a run. Unknown filter values are usage errors.
func setupError(err error) error {
	var fe *pipeline.FilterError
	if errors.As(err, &fe) {
		return &exitError{code: exitUsage, err: err}
	}
	return infrastructure(err)
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "catalog_agent",
		Short: "Solar product catalog consolidation pipeline",
		Long: `catalog_agent ingests distributor feeds, merges records that describe the same product,
normalizes their technical specs, links images, optionally enriches them from product photos,
validates every product against its category schema and publishes the unified catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	g.register(root)

	root.AddCommand(
		newIngestCmd(g),
		newStageCmd(g, stageConsolidate),
		newStageCmd(g, stageNormalize),
		newStageCmd(g, stageLinkImages),
		newStageCmd(g, stageEnrich),
		newStageCmd(g, stageValidate),
		newStageCmd(g, stageIndex),
		newStageCmd(g, stageRunAll),
		newInitCmd(g),
		newFetchPageCmd(g),
	)
	return root
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err) //nolint:errcheck
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck
	return exitUsage
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
