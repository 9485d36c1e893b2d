package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Provider and model management",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the supported models",
	Run: func(cmd *cobra.Command, args []string) {
		table := ui.Table([]string{"Model", "Provider", "Key"})
		for _, m := range config.Models {
			provider, _, _ := providers.ParseModelID(m)
			name := m
			if m == config.DefaultModel {
				name += " (default)"
			}
			_ = table.Append([]string{name, provider, keyHint(provider)})
		}
		_ = table.Render()
	},
}

func keyHint(provider string) string {
	vars := providers.KeyEnvVars(provider)
	if len(vars) == 0 {
		return "-"
	}
	return "TRIAD_API_KEY or " + vars[0]
}

// newChatModel is a variable so tests can avoid the network.
var newChatModel = func(cfg config.Config) (providers.ChatModel, error) {
	return providers.New(cfg.Model, cfg.ProviderOptions())
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate model credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}

		ui.Info("Checking %s...", cfg.Model)
		if cfg.SerperAPIKey == "" {
			ui.Warning("SERPER_API_KEY is not set; reviews will fail until it is")
		}

		m, err := newChatModel(cfg)
		if err != nil {
			ui.Error("FAIL: %v", err)
			exitCode = ExitConfigError
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, err = m.Chat(ctx, []providers.Message{
			{Role: providers.RoleSystem, Content: "Respond with exactly: ok"},
			{Role: providers.RoleUser, Content: "ping"},
		}, nil)
		if err != nil {
			ui.Error("FAIL: %v", err)
			if providers.IsAuthError(err) {
				exitCode = ExitConfigError
			} else {
				exitCode = ExitRuntimeError
			}
			return nil
		}

		ui.Success("OK: %s is configured and responding", cfg.Model)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Model to check")
}
