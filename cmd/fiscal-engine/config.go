// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/fiscal-engine/internal/panel"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// setDefaults registers the configuration defaults. Flags bound with
// mustBind override the config file, which overrides these.
func setDefaults() {
	limits := types.DefaultUploadLimits()

	viper.SetDefault("fiscal.root", "data/fiscal")
	viper.SetDefault("fiscal.backend", "chat")
	viper.SetDefault("fiscal.temperature", 0.1)
	viper.SetDefault("fiscal.timeout", 5*time.Minute)
	viper.SetDefault("fiscal.max_retries", 3)
	viper.SetDefault("fiscal.indicators", types.DefaultIndicators)
	viper.SetDefault("fiscal.not_found", "未找到")
	viper.SetDefault("fiscal.max_history", 20)
	viper.SetDefault("fiscal.concurrency", 1)
	viper.SetDefault("fiscal.limits.max_files", limits.MaxFiles)
	viper.SetDefault("fiscal.limits.max_file_bytes", limits.MaxFileBytes)
	viper.SetDefault("fiscal.limits.max_total_bytes", limits.MaxTotalBytes)
	viper.SetDefault("fiscal.limits.warning_threshold", limits.WarningThreshold)
	viper.SetDefault("fiscal.limits.on_exceed", string(limits.OnExceed))
	viper.SetDefault("fiscal.converter.image", "markitdown:latest")

	viper.SetDefault("debt.root", "data/debt")
	viper.SetDefault("panel.dir", "panel")
	viper.SetDefault("panel.max_magnitude", panel.DefaultMaxMagnitude)
}

// mustBind binds a flag to a configuration key. It panics on a nil flag,
// which can only be a programming error in an init function.
func mustBind(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding %s: %v", key, err))
	}
}

func fiscalConfig() (types.FiscalConfig, error) {
	action := types.ExceedAction(viper.GetString("fiscal.limits.on_exceed"))
	if action != types.ExceedSkip && action != types.ExceedStop {
		return types.FiscalConfig{}, fmt.Errorf("invalid on_exceed %q: use skip or stop", action)
	}
	backend := viper.GetString("fiscal.backend")
	if backend != "chat" && backend != "gemini" {
		return types.FiscalConfig{}, fmt.Errorf("unknown backend %q: use chat or gemini", backend)
	}

	return types.FiscalConfig{
		AIConfig: types.AIConfig{
			Backend:     backend,
			Model:       viper.GetString("fiscal.model"),
			BaseURL:     viper.GetString("fiscal.base_url"),
			APIKey:      viper.GetString("fiscal.api_key"),
			Temperature: viper.GetFloat64("fiscal.temperature"),
			Timeout:     viper.GetDuration("fiscal.timeout"),
			MaxRetries:  viper.GetInt("fiscal.max_retries"),
		},
		SourceDir:   viper.GetString("fiscal.root"),
		Force:       viper.GetBool("fiscal.force"),
		Indicators:  viper.GetStringSlice("fiscal.indicators"),
		NotFound:    viper.GetString("fiscal.not_found"),
		MaxHistory:  viper.GetInt("fiscal.max_history"),
		Concurrency: viper.GetInt("fiscal.concurrency"),
		Limits: types.UploadLimits{
			MaxFiles:         viper.GetInt("fiscal.limits.max_files"),
			MaxFileBytes:     viper.GetInt64("fiscal.limits.max_file_bytes"),
			MaxTotalBytes:    viper.GetInt64("fiscal.limits.max_total_bytes"),
			WarningThreshold: viper.GetFloat64("fiscal.limits.warning_threshold"),
			OnExceed:         action,
		},
	}, nil
}

func debtConfig(args []string) types.DebtConfig {
	root := viper.GetString("debt.root")
	if len(args) > 0 {
		root = args[0]
	}
	return types.DebtConfig{
		SourceDir:       root,
		ConsolidatedDir: viper.GetString("debt.consolidated_dir"),
		Force:           viper.GetBool("debt.force"),
	}
}

func panelConfig() types.PanelConfig {
	return types.PanelConfig{
		Dir:          viper.GetString("panel.dir"),
		MaxMagnitude: viper.GetFloat64("panel.max_magnitude"),
	}
}

func openStore() (*panel.Store, error) {
	return panel.NewStore(panelConfig())
}

// exportAfterRun writes dataset to a timestamped file in the panel
// directory when format is set.
func exportAfterRun(ctx context.Context, store *panel.Store, dataset, format string) error {
	if format == "" {
		return nil
	}
	f, err := panel.ParseFormat(format)
	if err != nil {
		return err
	}
	path, err := store.Export(ctx, dataset, f, "", panel.Filter{})
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", dataset, path)
	return nil
}
