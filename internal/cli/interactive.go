package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/providers"
)

// interactive and askCredentials are variables so tests can bypass the
// terminal.
var (
	interactive    = runInputForm
	askCredentials = runCredentialsForm
)

// runInputForm asks for the file and model and stores them in the review
// flags.
func runInputForm(ctx context.Context) error {
	file := flagFile
	model := flagModel
	if model == "" {
		model = config.DefaultModel
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("File to review").
				Description("Source file or diff").
				Value(&file).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s == "" {
						return errors.New("a file is required")
					}
					info, err := os.Stat(s)
					if err != nil {
						return err
					}
					if info.IsDir() {
						return fmt.Errorf("%s is a directory", s)
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Model").
				Options(huh.NewOptions(config.Models...)...).
				Value(&model),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("interactive form: %w", err)
	}

	flagFile = strings.TrimSpace(file)
	flagModel = model
	flagStaged, flagUnstaged, flagCommit, flagRange = false, false, "", ""
	return nil
}

// runCredentialsForm prompts only for credentials cfg lacks.
func runCredentialsForm(cfg *config.Config) error {
	var fields []huh.Field
	if providers.RequiresKey(cfg.Provider()) && cfg.APIKey == "" {
		fields = append(fields, huh.NewInput().
			Title(fmt.Sprintf("%s API key", cfg.Provider())).
			EchoMode(huh.EchoModePassword).
			Value(&cfg.APIKey).
			Validate(required("API key")))
	}
	if cfg.SerperAPIKey == "" {
		fields = append(fields, huh.NewInput().
			Title("Serper API key").
			Description("Used to search owasp.org during the security review").
			EchoMode(huh.EchoModePassword).
			Value(&cfg.SerperAPIKey).
			Validate(required("Serper API key")))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("interactive form: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.SerperAPIKey = strings.TrimSpace(cfg.SerperAPIKey)
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
