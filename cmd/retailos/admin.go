package main

import (
	"fmt"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Kalhara-JA/retail-os/internal/auth"
)

var adminPassword string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin API commands",
}

var adminHashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for api.admin.password_hash",
	RunE:  runAdminHashPassword,
}

func init() {
	adminHashPasswordCmd.Flags().StringVar(&adminPassword, "password", "", "password (will prompt if not provided)")

	adminCmd.AddCommand(adminHashPasswordCmd)
	rootCmd.AddCommand(adminCmd)
}

func runAdminHashPassword(cmd *cobra.Command, args []string) error {
	password := adminPassword
	if password == "" {
		fmt.Print("Enter password: ")
		pwBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		fmt.Print("Confirm password: ")
		pwBytes2, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if string(pwBytes) != string(pwBytes2) {
			return fmt.Errorf("passwords do not match")
		}
		password = string(pwBytes)
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	color.Green("Password hash:")
	fmt.Println(hash)
	return nil
}
