package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/rolechat/internal/config"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [path]",
			Short: "Validate configuration",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p := params(cmd)
				if len(args) == 1 {
					p.ConfigPath = args[0]
				}
				cfg, path, err := app.LoadConfig(p)
				if err != nil {
					return err
				}
				if path == "" {
					path = "(defaults)"
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Configuration OK: %s\n", path)
				fmt.Fprintf(out, "  provider:   %s\n", provider.Detect(cfg.Provider.BaseURL))
				fmt.Fprintf(out, "  model:      %s\n", cfg.Chat.Model)
				fmt.Fprintf(out, "  characters: %d\n", len(cfg.Characters))
				for _, ch := range cfg.Characters {
					fmt.Fprintf(out, "    %s (%s)\n", ch.ID, ch.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets redacted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := app.LoadConfig(params(cmd))
				if err != nil {
					return err
				}
				out, err := redactedYAML(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		},
	)
	return cmd
}

// redactedYAML renders cfg with every credential masked.
func redactedYAML(cfg *config.Config) ([]byte, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	store := security.NewCredentialStore()
	store.Replace(cfg.Credentials())
	redactor := security.NewRedactor()
	redactor.SyncCredentials(store)
	redactor.RedactMap(tree)

	return yaml.Marshal(tree)
}

// Provider choices offered by setup.
const (
	setupGemini     = "gemini"
	setupOpenRouter = "openrouter"
	setupCustom     = "custom"

	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create a configuration interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = app.DefaultConfigPath()
			}

			cfg, err := loadOrDefault(path)
			if err != nil {
				return err
			}
			if err := runSetupForm(cfg); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Setup cancelled.")
					return nil
				}
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
}

func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.Default(map[string]string{})
}

func runSetupForm(cfg *config.Config) error {
	choice := setupGemini
	switch {
	case strings.Contains(cfg.Provider.BaseURL, "openrouter"):
		choice = setupOpenRouter
	case cfg.Provider.BaseURL != "":
		choice = setupCustom
	}

	var (
		characterID   string
		characterName string
		instruction   string
		greeting      string
	)
	if len(cfg.Characters) > 0 {
		ch := cfg.Characters[0]
		characterID, characterName, instruction, greeting = ch.ID, ch.Name, ch.Instruction, ch.Greeting
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("Google Gemini (native)", setupGemini),
					huh.NewOption("OpenRouter", setupOpenRouter),
					huh.NewOption("Other OpenAI-compatible endpoint", setupCustom),
				).
				Value(&choice),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Provider.APIKey),
			huh.NewInput().
				Title("Model").
				Placeholder(config.DefaultModel).
				Value(&cfg.Chat.Model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Description("Only used for a custom endpoint.").
				Value(&cfg.Provider.BaseURL).
				Validate(validateBaseURL),
		).WithHideFunc(func() bool { return choice != setupCustom }),
		huh.NewGroup(
			huh.NewInput().Title("Character id").Value(&characterID).Validate(required("id")),
			huh.NewInput().Title("Character name").Value(&characterName),
			huh.NewText().Title("Instruction").Value(&instruction),
			huh.NewInput().Title("Greeting").Value(&greeting),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway address").
				Placeholder(config.DefaultBind).
				Value(&cfg.Gateway.Bind),
			huh.NewInput().
				Title("Database path").
				Description("Leave empty to keep history in memory.").
				Value(&cfg.Storage.Path),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	switch choice {
	case setupGemini:
		cfg.Provider.BaseURL = ""
	case setupOpenRouter:
		cfg.Provider.BaseURL = openRouterBaseURL
	}
	cfg.Characters = upsertCharacter(cfg.Characters, config.CharacterConfig{
		ID:          strings.TrimSpace(characterID),
		Name:        strings.TrimSpace(characterName),
		Instruction: strings.TrimSpace(instruction),
		Greeting:    strings.TrimSpace(greeting),
	})
	cfg.ApplyDefaults()
	return nil
}

// upsertCharacter replaces the character with the same id, or prepends it.
func upsertCharacter(chars []config.CharacterConfig, ch config.CharacterConfig) []config.CharacterConfig {
	for i := range chars {
		if chars[i].ID == ch.ID {
			ch.InstructionFile = chars[i].InstructionFile
			if ch.InstructionFile != "" {
				ch.Instruction = ""
			}
			chars[i] = ch
			return chars
		}
	}
	return append([]config.CharacterConfig{ch}, chars...)
}

func validateBaseURL(s string) error {
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
