package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
		Long:  "Create and list administrative users who can manage AstroCalc through the admin API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminResetPasswordCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin account",
		Example: `  astrocalc admin create --username ops --password 'S3cretPass'
  astrocalc admin create --username ops  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(username, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runAdminCreate(username, password string) error {
	if password == "" {
		var err error
		password, err = promptPassword(true)
		if err != nil {
			return err
		}
	}
	if err := service.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	admin := &model.Admin{
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateAdmin(context.Background(), admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Printf("Created admin account %q\n", username)
	return nil
}

// promptPassword reads a password from the terminal without echo, optionally
// asking for confirmation.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Println()

	if confirm {
		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("read confirmation: %w", err)
		}
		fmt.Println()
		if string(pwBytes) != string(confirmBytes) {
			return "", fmt.Errorf("passwords do not match")
		}
	}

	return string(pwBytes), nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	admins, err := st.ListAdmins(context.Background())
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(admins)
	}

	if len(admins) == 0 {
		fmt.Println("No admin accounts configured. Use 'astrocalc admin create' to create one.")
		return nil
	}

	fmt.Printf("%-20s %-8s %-20s\n", "USERNAME", "ACTIVE", "LAST LOGIN")
	fmt.Printf("%-20s %-8s %-20s\n", "--------", "------", "----------")
	for _, a := range admins {
		active := "yes"
		if !a.IsActive {
			active = "no"
		}
		lastLogin := "never"
		if a.LastLoginAt != nil {
			lastLogin = a.LastLoginAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-20s %-8s %-20s\n", a.Username, active, lastLogin)
	}

	return nil
}

// ---------- admin reset-password ----------

func newAdminResetPasswordCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Reset an admin account's password",
		Long:  "Replace an admin's password without knowing the current one. Active sessions stay valid until they expire.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminResetPassword(args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func runAdminResetPassword(username, password string) error {
	if password == "" {
		var err error
		password, err = promptPassword(true)
		if err != nil {
			return err
		}
	}
	if err := service.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.UpdateAdminPassword(context.Background(), username, string(hash)); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	fmt.Printf("Password reset for %q\n", username)
	return nil
}
