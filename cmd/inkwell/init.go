// ABOUTME: init command that writes a starter config with a random signing secret
// ABOUTME: Emits YAML or TOML depending on the target file extension

package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/inkwell/internal/config"
)

const configHeader = "# inkwell configuration\n# Generated by inkwell init\n\n"

type initOptions struct {
	force      bool
	adminEmail string
	grpcAddr   string
}

func newInitCmd() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with a random JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(getConfigPath(), getDataPath(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&opts.adminEmail, "admin-email", "", "email of the default administrator")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", "", "enable the gRPC listener on this address")
	return cmd
}

// generateSecret returns a standard base64 encoding of 64 random bytes (HS512).
func generateSecret() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// starterConfig returns a config with defaults filled in.
func starterConfig(dataPath, secret string, opts initOptions) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: "localhost:8080",
			GRPCAddr: opts.grpcAddr,
		},
		Database: config.DatabaseConfig{
			Path: filepath.Join(dataPath, "inkwell.db"),
		},
		Auth: config.AuthConfig{
			JWTSecret: secret,
		},
		Bootstrap: config.BootstrapConfig{
			AdminEmail: opts.adminEmail,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// encodeConfig renders cfg as TOML for .toml paths and YAML otherwise.
func encodeConfig(path string, cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding TOML: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func runInit(configPath, dataPath string, opts initOptions) error {
	if _, err := os.Stat(configPath); err == nil && !opts.force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	data, err := encodeConfig(configPath, starterConfig(dataPath, secret, opts))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("    Start the server with: inkwell serve")
	return nil
}
