// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/fiscal-engine/internal/debt"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

var debtCmd = &cobra.Command{
	Use:   "debt",
	Short: "Clean special-bond project disclosure tables",
}

var debtCleanCmd = &cobra.Command{
	Use:   "clean [root]",
	Short: "Turn disclosure tables into one panel row per project",
	Long: `Clean walks <root>/<region>/<year>/ for disclosure workbooks, CSV and HTML
tables. Paged files (name__01.xlsx, name__02.xlsx, ...) are read as one
disclosure. The project table is located by its title and header, stitched
across pages, and enriched with the per-project information blocks that
follow it. Each project becomes one row in the panel store.

Groups already cleaned are skipped unless --force is given. Tables that do
not match the layout are reported as unrecognized.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDebtClean,
}

var debtLayoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "Print the available table layouts as YAML",
	Long: `Layouts prints the built-in special-bond layout and any layouts loaded
with --layouts. The output is a valid layouts file and can be edited to
describe a new table layout.`,
	RunE: runDebtLayouts,
}

func init() {
	debtCmd.PersistentFlags().String("layouts", "", "YAML file of additional table layouts")
	debtCmd.PersistentFlags().String("layout", "", "layout name (default special-bond)")
	mustBind("debt.layouts", debtCmd.PersistentFlags().Lookup("layouts"))
	mustBind("debt.layout", debtCmd.PersistentFlags().Lookup("layout"))

	f := debtCleanCmd.Flags()
	f.String("consolidated-dir", "", "write one consolidated workbook per group to this directory")
	f.Bool("force", false, "re-clean groups already in the processing log")
	f.String("dataset", "", "panel dataset name (default debt-<layout>)")
	f.String("export", "", "export the dataset after the run: xlsx, csv, yaml or json")
	mustBind("debt.consolidated_dir", f.Lookup("consolidated-dir"))
	mustBind("debt.force", f.Lookup("force"))

	debtCmd.AddCommand(debtCleanCmd)
	debtCmd.AddCommand(debtLayoutsCmd)
	rootCmd.AddCommand(debtCmd)
}

func extraLayouts() ([]types.DebtLayout, error) {
	path := viper.GetString("debt.layouts")
	if path == "" {
		return nil, nil
	}
	return debt.LoadLayouts(path)
}

func runDebtClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := debtConfig(args)

	extra, err := extraLayouts()
	if err != nil {
		return err
	}
	cfg.Layout, err = debt.SelectLayout(viper.GetString("debt.layout"), extra)
	if err != nil {
		return err
	}

	dataset, _ := cmd.Flags().GetString("dataset")
	cleaner, err := debt.NewCleaner(cfg, dataset, logger)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := cleaner.Clean(ctx, store, os.Stdout)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("export")
	if summary.Cleaned > 0 || summary.Skipped > 0 {
		if err := exportAfterRun(ctx, store, cleaner.Dataset().Name, format); err != nil {
			return err
		}
	}

	if summary.HasFailures() {
		return fmt.Errorf("%d group(s) failed cleaning", summary.Failed)
	}
	return nil
}

func runDebtLayouts(cmd *cobra.Command, args []string) error {
	extra, err := extraLayouts()
	if err != nil {
		return err
	}
	doc := struct {
		Layouts []types.DebtLayout `yaml:"layouts"`
	}{Layouts: append([]types.DebtLayout{types.SpecialBondLayout()}, extra...)}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}
