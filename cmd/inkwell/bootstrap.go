// ABOUTME: bootstrap command that provisions the default administrator
// ABOUTME: Prints the generated password once; it is not stored anywhere in clear text

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"

	"github.com/2389/inkwell/internal/config"
	"github.com/2389/inkwell/internal/gateway"
)

func runBootstrap(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Bootstrap.AdminEmail == "" {
		return errors.New("bootstrap.admin_email is not set (or set INKWELL_ADMIN_EMAIL)")
	}

	logger := setupLogger(cfg.Logging)
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown(context.Background()) }()

	result, err := gw.BootstrapAdmin(ctx)
	if err != nil {
		return err
	}
	printAdminCredentials(result.Principal.Email, result.Password, result.Created)
	return nil
}

func printAdminCredentials(email, password string, created bool) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if created {
		green.Println("  ✓ Created default admin")
	} else {
		green.Println("  ✓ Rotated default admin password")
	}
	fmt.Print("    Email:    ")
	cyan.Println(email)
	fmt.Print("    Password: ")
	cyan.Println(password)
	yellow.Println("    Store this password now; it will not be shown again.")
	fmt.Println()
}
