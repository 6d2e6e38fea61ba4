package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .actiongate.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to actiongate! Let's configure your deployment.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Backend selection.
	backendPrompt := promptui.Select{
		Label: "Select storage backend",
		Items: []string{
			"sqlite — single file, shared by co-located processes",
			"redis  — multi-process deployments",
			"memory — single process, state lost on restart",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("backend selection: %w", err)
	}
	backends := []Backend{BackendSQLite, BackendRedis, BackendMemory}
	cfg.Backend = backends[backendIdx]

	// 2. Backend location.
	switch cfg.Backend {
	case BackendSQLite:
		pathPrompt := promptui.Prompt{
			Label:   "SQLite database path",
			Default: cfg.DatabasePath,
		}
		if cfg.DatabasePath, err = pathPrompt.Run(); err != nil {
			return nil, fmt.Errorf("database path: %w", err)
		}
	case BackendRedis:
		urlPrompt := promptui.Prompt{
			Label:   "Redis URL",
			Default: cfg.RedisURL,
		}
		if cfg.RedisURL, err = urlPrompt.Run(); err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
	}

	// 3. Listen port.
	portPrompt := promptui.Prompt{
		Label:    "Listen port",
		Default:  strconv.Itoa(cfg.Port),
		Validate: validatePort,
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	// 4. Callback TTL.
	ttlPrompt := promptui.Prompt{
		Label:    "Callback TTL in seconds",
		Default:  strconv.Itoa(cfg.TTLSec),
		Validate: validatePositive,
	}
	ttlStr, err := ttlPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("ttl: %w", err)
	}
	cfg.TTLSec, _ = strconv.Atoi(ttlStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("enter a port between 1 and 65535")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
