package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gamecodelab/gamecode/internal/config"
)

// cmdInit initializes GameCode for first-time use
func cmdInit() error {
	fmt.Println("GameCode - First-Time Setup")
	fmt.Println("===========================")
	fmt.Println()

	fmt.Print("Creating ~/.gamecode directory structure... ")
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Println()
	fmt.Println("AI Tutor Setup")
	fmt.Println("--------------")
	fmt.Println("The tutor uses DeepSeek by default; any OpenAI-compatible API works.")
	fmt.Println()

	cfg, _ := config.LoadLocalConfig()
	if cfg != nil && cfg.LLM.Providers["deepseek"] != nil && cfg.LLM.Providers["deepseek"].APIKey != "" {
		fmt.Println("DeepSeek API key: already configured ✓")
	} else {
		fmt.Print("Enter DeepSeek API key (or press Enter to skip): ")
		key, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if key = strings.TrimSpace(key); key != "" {
			if err := config.SaveSecrets(map[string]string{"deepseek": key}); err != nil {
				fmt.Printf("  ⚠ Failed to save: %v\n", err)
			} else {
				fmt.Println("  ✓ Saved")
			}
		}
	}

	fmt.Println()
	fmt.Print("Checking Docker... ")
	if err := checkDocker(); err != nil {
		fmt.Println("⚠ Not available (script pre-check will stay off)")
	} else {
		fmt.Println("✓")
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. gamecode start     # Start the daemon")
	fmt.Println("  2. gamecode doctor    # Verify configuration")
	fmt.Println("  3. gamecode level 0   # See where every learner begins")

	return nil
}

// cmdDoctor checks system requirements
func cmdDoctor() error {
	fmt.Println("Checking system requirements...")
	allGood := true

	fmt.Print("Docker:    ")
	if err := checkDocker(); err != nil {
		fmt.Printf("⚠ %v (only needed for script pre-check)\n", err)
	} else {
		fmt.Println("✓ available")
	}

	fmt.Print("Directory: ")
	dir, err := config.Dir()
	switch {
	case err != nil:
		fmt.Printf("✗ %v\n", err)
		allGood = false
	case !exists(dir):
		fmt.Println("✗ not created (run 'gamecode init')")
		allGood = false
	default:
		fmt.Printf("✓ %s\n", dir)
	}

	fmt.Print("Config:    ")
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Printf("✓ loaded (storage: %s)\n", cfg.Storage.Driver)

		fmt.Println("\nLLM Providers:")
		for _, name := range providerNames(cfg) {
			provider := cfg.LLM.Providers[name]
			if !provider.Enabled {
				continue
			}
			if provider.APIKey != "" {
				fmt.Printf("  %s: ✓ configured (model: %s)\n", name, provider.Model)
			} else {
				fmt.Printf("  %s: ✗ no API key (run 'gamecode provider set-key %s')\n", name, name)
			}
		}
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'gamecode start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("GameCode Configuration")

	fmt.Println("\nDaemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nLLM:")
	fmt.Printf("  default_provider: %s\n", cfg.LLM.DefaultProvider)
	for _, name := range providerNames(cfg) {
		provider := cfg.LLM.Providers[name]
		keyStatus := "✗"
		if provider.APIKey != "" {
			keyStatus = "✓"
		}
		fmt.Printf("  %s: enabled=%t model=%s key=%s\n", name, provider.Enabled, provider.Model, keyStatus)
	}

	fmt.Println("\nPreview:")
	fmt.Printf("  debounce: %s\n", cfg.Debounce())
	fmt.Printf("  max_code_length: %d\n", cfg.Preview.MaxCodeLength)
	fmt.Printf("  syntax_check: %t (image: %s)\n", cfg.Preview.SyntaxCheck.Enabled, cfg.Preview.SyntaxCheck.Image)

	fmt.Println("\nStorage:")
	fmt.Printf("  driver: %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		fmt.Printf("  path: %s\n", cfg.Storage.SQLitePath)
	}
	fmt.Printf("  drafts: %s\n", cfg.Storage.DraftsPath)

	fmt.Println("\nCommunity:")
	fmt.Printf("  leaderboard: %t (redis: %s, cohort: %s)\n", cfg.Redis.Enabled, cfg.Redis.Addr, cfg.Redis.Cohort)
	fmt.Printf("  events: %t (workers: %d)\n", cfg.Queue.Enabled, cfg.Queue.Workers)

	fmt.Println("\nTutor rate limits (per hour):")
	fmt.Printf("  guest=%d student=%d teacher=%d admin=%d\n",
		cfg.RateLimits.Guest, cfg.RateLimits.Student, cfg.RateLimits.Teacher, cfg.RateLimits.Admin)
	fmt.Printf("\nTrial: %d days\n", cfg.Trial.DurationDays)

	dir, _ := config.Dir()
	fmt.Printf("\nConfig path: %s/config.yaml\n", dir)
	return nil
}

// cmdProvider manages LLM provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Provider management commands:

  gamecode provider list              List configured providers
  gamecode provider set-key <name>    Set API key for a provider`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1], os.Stdin)
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Configured LLM Providers:")
	for _, name := range providerNames(cfg) {
		provider := cfg.LLM.Providers[name]
		status := "disabled"
		if provider.Enabled {
			status = "needs API key"
			if provider.APIKey != "" {
				status = "ready"
			}
		}

		isDefault := ""
		if name == cfg.LLM.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Printf("  %s%s\n", name, isDefault)
		fmt.Printf("    status: %s\n", status)
		fmt.Printf("    model:  %s\n", provider.Model)
		if provider.URL != "" {
			fmt.Printf("    url:    %s\n", provider.URL)
		}
		fmt.Println()
	}
	return nil
}

func cmdProviderSetKey(provider string, in io.Reader) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, ok := cfg.LLM.Providers[provider]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: %s)", provider, strings.Join(providerNames(cfg), ", "))
	}

	fmt.Printf("Enter %s API key: ", provider)
	key, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read input: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveSecrets(map[string]string{provider: key}); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", provider)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}

func providerNames(cfg *config.LocalConfig) []string {
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkDocker() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	cmd := exec.Command("docker", "info")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker daemon not running")
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
