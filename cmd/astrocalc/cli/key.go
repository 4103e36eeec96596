package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys that authenticate chart requests.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		perMinute   int
		perDay      int
		perMonth    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  astrocalc key create --name "mobile app"
  astrocalc key create --name "partner" --per-minute 10 --per-day 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			limits := model.RateLimits{PerMinute: perMinute, PerDay: perDay, PerMonth: perMonth}
			return runKeyCreate(name, description, limits)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	cmd.Flags().IntVar(&perMinute, "per-minute", 60, "Requests allowed per minute")
	cmd.Flags().IntVar(&perDay, "per-day", 10000, "Requests allowed per day")
	cmd.Flags().IntVar(&perMonth, "per-month", 100000, "Requests allowed per month")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name, description string, limits model.RateLimits) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	plaintext, err := store.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	key := &model.APIKey{
		KeyHash:     store.HashKey(plaintext),
		KeyPrefix:   store.KeyPrefix(plaintext),
		Name:        name,
		Description: description,
		RateLimits:  limits,
		IsActive:    true,
	}
	if err := st.CreateAPIKey(context.Background(), key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", plaintext)
	fmt.Printf("  Name:   %s\n", name)
	fmt.Printf("  Limits: %d/min, %d/day, %d/month\n", limits.PerMinute, limits.PerDay, limits.PerMonth)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	keys, _, err := st.ListAPIKeys(context.Background(), store.ListFilter{Page: 1, PageSize: 1000})
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'astrocalc key create' to create one.")
		return nil
	}

	fmt.Printf("%-14s %-24s %-8s %-20s\n", "PREFIX", "NAME", "ACTIVE", "PER MIN/DAY/MONTH")
	fmt.Printf("%-14s %-24s %-8s %-20s\n", "------", "----", "------", "-----------------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		limits := fmt.Sprintf("%d/%d/%d", k.PerMinute, k.PerDay, k.PerMonth)
		fmt.Printf("%-14s %-24s %-8s %-20s\n", k.KeyPrefix, k.Name, active, limits)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, denying any further requests made with it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(prefix string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	keys, _, err := st.ListAPIKeys(ctx, store.ListFilter{Page: 1, PageSize: 1000})
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	var matched *model.APIKey
	for i := range keys {
		if strings.HasPrefix(keys[i].KeyPrefix, prefix) {
			if matched != nil {
				return fmt.Errorf("prefix %q is ambiguous", prefix)
			}
			matched = &keys[i]
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found with prefix %q", prefix)
	}

	if err := st.SetAPIKeyActive(ctx, matched.ID, false); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q (%s)\n", matched.Name, matched.KeyPrefix)
	return nil
}
