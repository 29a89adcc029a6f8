// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/fiscal-engine/internal/panel"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Inspect, validate and export panel datasets",
	Long: `Panel manages the local SQLite panel store written by fiscal extract and
debt clean. Each dataset is a table indexed by (unit, year) with one row per
source document (one row per project for debt datasets).`,
}

// --- list subcommand ---

var panelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets in the panel store",
	Args:  cobra.NoArgs,
	RunE:  runPanelList,
}

func runPanelList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.Datasets(cmd.Context())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No datasets.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-30s  %-6s  %7s  %7s  %7s  %s\n", "Dataset", "Kind", "Columns", "Rows", "Sources", "Updated")
	for _, d := range infos {
		fmt.Fprintf(os.Stdout, "%-30s  %-6s  %7d  %7d  %7d  %s\n", d.Name, d.Kind, d.Columns, d.Rows, d.Sources, d.UpdatedAt)
	}
	return nil
}

// --- show subcommand ---

var panelShowCmd = &cobra.Command{
	Use:   "show <dataset>",
	Short: "Print a dataset as an aligned table",
	Args:  cobra.ExactArgs(1),
	RunE:  runPanelShow,
}

func runPanelShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := store.Dataset(cmd.Context(), args[0], filterFromFlags(cmd))
	if err != nil {
		return err
	}
	return panel.WriteTable(os.Stdout, ds)
}

// --- export subcommand ---

var panelExportCmd = &cobra.Command{
	Use:   "export <dataset>",
	Short: "Export a dataset to xlsx, csv, yaml or json",
	Long: `Export writes a dataset to a file. Without --out the file is written to
the panel directory as <dataset>_<YYYYMMDD_HHMMSS>.<format>. An xlsx export
holds the rows on the Panel_Data sheet and the processing log on the
processing_log sheet.`,
	Args: cobra.ExactArgs(1),
	RunE: runPanelExport,
}

func runPanelExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	f, err := panel.ParseFormat(format)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := store.Export(cmd.Context(), args[0], f, out, filterFromFlags(cmd))
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", args[0], path)
	return nil
}

// --- validate subcommand ---

var panelValidateCmd = &cobra.Command{
	Use:   "validate <dataset>",
	Short: "Check unit, year and amount plausibility",
	Long: `Validate checks that every row has a unit and a year and that every
amount column holds a non-negative number no larger than
panel.max_magnitude (in 万元). Blank amounts are accepted. The command
exits non-zero when any issue is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runPanelValidate,
}

func runPanelValidate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := store.Dataset(cmd.Context(), args[0], filterFromFlags(cmd))
	if err != nil {
		return err
	}

	issues := panel.Validate(ds, panelConfig().MaxMagnitude)
	for _, is := range issues {
		fmt.Println(is)
	}
	fmt.Printf("\n%d rows checked, %d issue(s)\n", len(ds.Records), len(issues))
	if len(issues) > 0 {
		return fmt.Errorf("%d validation issue(s) in %s", len(issues), args[0])
	}
	return nil
}

// --- report subcommand ---

var panelReportCmd = &cobra.Command{
	Use:   "report <dataset>",
	Short: "Write a Markdown summary of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPanelReport,
}

func runPanelReport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := store.Dataset(cmd.Context(), args[0], filterFromFlags(cmd))
	if err != nil {
		return err
	}
	issues := panel.Validate(ds, panelConfig().MaxMagnitude)

	var w io.Writer = os.Stdout
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	return panel.WriteReport(w, ds, issues, time.Now())
}

// --- log subcommand ---

var panelLogCmd = &cobra.Command{
	Use:   "log <dataset>",
	Short: "Show the processing log of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPanelLog,
}

func runPanelLog(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ProcessingLog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(os.Stdout, "%-20s  %-12s  %5d  %s  %s\n", e.ProcessedAt, e.Status, e.Rows, e.RunID, e.Source)
	}
	return nil
}

// --- drop subcommand ---

var panelDropCmd = &cobra.Command{
	Use:   "drop <dataset>",
	Short: "Delete a dataset and its processing log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Drop(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Dropped %s\n", args[0])
		return nil
	},
}

// --- shared helpers ---

func filterFromFlags(cmd *cobra.Command) panel.Filter {
	unit, _ := cmd.Flags().GetString("unit")
	year, _ := cmd.Flags().GetString("year")
	return panel.Filter{Unit: unit, Year: year}
}

func init() {
	for _, c := range []*cobra.Command{panelShowCmd, panelExportCmd, panelValidateCmd, panelReportCmd} {
		c.Flags().String("unit", "", "only rows of this unit")
		c.Flags().String("year", "", "only rows of this year")
	}

	panelListCmd.Flags().Bool("json", false, "output as JSON")

	panelExportCmd.Flags().String("format", "xlsx", "export format: xlsx, csv, yaml or json")
	panelExportCmd.Flags().String("out", "", "output file (default: timestamped file in the panel directory)")

	panelReportCmd.Flags().String("out", "", "write the report to a file instead of stdout")

	panelCmd.AddCommand(panelListCmd)
	panelCmd.AddCommand(panelShowCmd)
	panelCmd.AddCommand(panelExportCmd)
	panelCmd.AddCommand(panelValidateCmd)
	panelCmd.AddCommand(panelReportCmd)
	panelCmd.AddCommand(panelLogCmd)
	panelCmd.AddCommand(panelDropCmd)

	rootCmd.AddCommand(panelCmd)
}
