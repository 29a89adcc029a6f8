// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/fiscal-engine/internal/container"
	"github.com/pdiddy/fiscal-engine/internal/fiscal"
	"github.com/pdiddy/fiscal-engine/internal/secrets"
	"github.com/pdiddy/fiscal-engine/internal/textconv"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

var fiscalCmd = &cobra.Command{
	Use:   "fiscal",
	Short: "Extract fiscal indicators from budget disclosures",
}

var fiscalExtractCmd = &cobra.Command{
	Use:   "extract [units...]",
	Short: "Ask a chat model for budget-execution indicators",
	Long: `Extract reads the disclosure documents under <root>/<unit>/<year>/ and asks
the configured chat model for the fiscal indicators of each unit and year.
Every year directory yields one record in the panel store. Indicators the
model cannot find are left blank.

Units default to every directory under the root. Years already extracted
successfully are skipped unless --force is given. PDF and office documents
are converted with the markitdown container image when docker or podman is
available.`,
	RunE: runFiscalExtract,
}

func init() {
	f := fiscalExtractCmd.Flags()
	f.String("root", "data/fiscal", "root directory of <unit>/<year>/ disclosure documents")
	f.String("backend", "chat", "extraction backend: chat (OpenAI-compatible) or gemini")
	f.String("model", "", "model identifier (default kimi-k2-turbo-preview or gemini-2.5-flash)")
	f.String("base-url", "", "chat API base URL (default https://api.moonshot.cn/v1)")
	f.Int("concurrency", 1, "units processed in parallel")
	f.String("on-exceed", "skip", "action when an upload limit is reached: skip or stop")
	f.Bool("force", false, "re-extract years already in the processing log")
	f.String("runtime", "", "container runtime for PDF conversion: docker or podman (default auto)")
	f.String("dataset", "fiscal", "panel dataset name")
	f.String("export", "", "export the dataset after the run: xlsx, csv, yaml or json")

	mustBind("fiscal.root", f.Lookup("root"))
	mustBind("fiscal.backend", f.Lookup("backend"))
	mustBind("fiscal.model", f.Lookup("model"))
	mustBind("fiscal.base_url", f.Lookup("base-url"))
	mustBind("fiscal.concurrency", f.Lookup("concurrency"))
	mustBind("fiscal.limits.on_exceed", f.Lookup("on-exceed"))
	mustBind("fiscal.force", f.Lookup("force"))
	mustBind("fiscal.converter.runtime", f.Lookup("runtime"))

	fiscalCmd.AddCommand(fiscalExtractCmd)
	rootCmd.AddCommand(fiscalCmd)
}

func runFiscalExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := fiscalConfig()
	if err != nil {
		return err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	dataset, _ := cmd.Flags().GetString("dataset")
	ext := fiscal.NewExtractor(backend, newDocumentReader(ctx), cfg, dataset, logger)

	ds, summary, err := ext.ExtractAll(ctx, args, store, os.Stdout)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("export")
	if err := exportAfterRun(ctx, store, ds.Name, format); err != nil {
		return err
	}

	if summary.HasFailures() {
		return fmt.Errorf("%d document(s) failed extraction", summary.Failed+summary.ParseFailed)
	}
	return nil
}

// newBackend builds the configured extraction backend. The API key comes
// from the config, then .secrets/, then the environment.
func newBackend(ctx context.Context, cfg types.FiscalConfig) (fiscal.AIBackend, error) {
	key := cfg.APIKey
	if key == "" {
		key = secrets.APIKey(loadedSecrets, cfg.Backend)
	}
	if key == "" {
		if cfg.Backend == "gemini" {
			return nil, fmt.Errorf("no API key: add .secrets/%s or set %s", secrets.GeminiKeyFile, secrets.GeminiKeyEnv)
		}
		return nil, fmt.Errorf("no API key: add .secrets/%s or set %s", secrets.MoonshotKeyFile, secrets.MoonshotKeyEnv)
	}

	if cfg.Backend == "gemini" {
		return fiscal.NewGeminiBackend(ctx, key, cfg.Model, cfg.Temperature)
	}
	return &fiscal.ChatBackend{
		APIKey:      key,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		Client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// newDocumentReader returns the text converters. Binary documents are
// supported only when a container runtime with the markitdown image is
// available.
func newDocumentReader(ctx context.Context) *textconv.Router {
	r := textconv.NewRouter()

	rt, err := container.Detect(ctx, viper.GetString("fiscal.converter.runtime"))
	if err != nil {
		logger.Warn("PDF and office documents will be skipped", zap.Error(err))
		return r
	}
	m, err := textconv.NewMarkitdown(ctx, rt, viper.GetString("fiscal.converter.image"))
	if err != nil {
		logger.Warn("PDF and office documents will be skipped", zap.Error(err))
		return r
	}
	r.Handle(m, textconv.MarkitdownExts...)
	return r
}
