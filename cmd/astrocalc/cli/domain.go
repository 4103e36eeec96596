package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/store"
)

func newDomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage authorized domains",
		Long:  "Add, list, and remove domains allowed to call the chart API without a key. Domain identity comes from request headers and is weaker than key possession; it is off unless auth.allow_domain_auth is set.",
	}

	cmd.AddCommand(newDomainAddCmd())
	cmd.AddCommand(newDomainListCmd())
	cmd.AddCommand(newDomainRemoveCmd())
	cmd.AddCommand(newDomainImportCmd())

	return cmd
}

// ---------- domain add ----------

func newDomainAddCmd() *cobra.Command {
	var (
		perMinute int
		perDay    int
		perMonth  int
	)

	cmd := &cobra.Command{
		Use:   "add <domain>",
		Short: "Authorize a domain",
		Long:  "Authorize a hostname (and all its subdomains) to call the chart API.",
		Example: `  astrocalc domain add example.com
  astrocalc domain add partner.io --per-minute 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limits := model.RateLimits{PerMinute: perMinute, PerDay: perDay, PerMonth: perMonth}
			return runDomainAdd(args[0], limits)
		},
	}

	cmd.Flags().IntVar(&perMinute, "per-minute", 60, "Requests allowed per minute")
	cmd.Flags().IntVar(&perDay, "per-day", 10000, "Requests allowed per day")
	cmd.Flags().IntVar(&perMonth, "per-month", 100000, "Requests allowed per month")

	return cmd
}

func runDomainAdd(domain string, limits model.RateLimits) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	d := &model.Domain{
		Domain:     domain,
		RateLimits: limits,
		IsActive:   true,
	}
	if err := st.CreateDomain(context.Background(), d); err != nil {
		return fmt.Errorf("add domain: %w", err)
	}

	fmt.Printf("Authorized domain %q and its subdomains\n", d.Domain)
	return nil
}

// ---------- domain list ----------

func newDomainListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List authorized domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDomainList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDomainList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	domains, _, err := st.ListDomains(context.Background(), store.ListFilter{Page: 1, PageSize: 1000})
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(domains)
	}

	if len(domains) == 0 {
		fmt.Println("No authorized domains. Use 'astrocalc domain add' to add one.")
		return nil
	}

	fmt.Printf("%-32s %-8s %-20s\n", "DOMAIN", "ACTIVE", "PER MIN/DAY/MONTH")
	fmt.Printf("%-32s %-8s %-20s\n", "------", "------", "-----------------")
	for _, d := range domains {
		active := "yes"
		if !d.IsActive {
			active = "no"
		}
		limits := fmt.Sprintf("%d/%d/%d", d.PerMinute, d.PerDay, d.PerMonth)
		fmt.Printf("%-32s %-8s %-20s\n", d.Domain, active, limits)
	}

	return nil
}

// ---------- domain remove ----------

func newDomainRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <domain>",
		Aliases: []string{"rm"},
		Short:   "Remove an authorized domain",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDomainRemove(args[0])
		},
	}

	return cmd
}

func runDomainRemove(domain string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	normalized := model.NormalizeDomain(domain)

	domains, _, err := st.ListDomains(ctx, store.ListFilter{Page: 1, PageSize: 1000})
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}
	for _, d := range domains {
		if d.Domain == normalized {
			if err := st.DeleteDomain(ctx, d.ID); err != nil {
				return fmt.Errorf("remove domain: %w", err)
			}
			fmt.Printf("Removed domain %q\n", normalized)
			return nil
		}
	}
	return fmt.Errorf("domain %q not found", normalized)
}

// ---------- domain import ----------

// domainImportFile is the YAML shape accepted by 'domain import'.
type domainImportFile struct {
	Domains []struct {
		Domain    string `yaml:"domain"`
		PerMinute *int   `yaml:"requests_per_minute"`
		PerDay    *int   `yaml:"requests_per_day"`
		PerMonth  *int   `yaml:"requests_per_month"`
	} `yaml:"domains"`
}

func newDomainImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import authorized domains from a YAML file",
		Long: `Import domains in bulk from a YAML file. Entries that already exist are
skipped. Limits default to 60/min, 10000/day, 100000/month when omitted.

Example file:

  domains:
    - domain: example.com
    - domain: partner.io
      requests_per_minute: 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDomainImport(args[0])
		},
	}

	return cmd
}

func runDomainImport(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	var file domainImportFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}
	if len(file.Domains) == 0 {
		return fmt.Errorf("no domains found in %s", path)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	added, skipped := 0, 0

	for _, entry := range file.Domains {
		limits := model.RateLimits{PerMinute: 60, PerDay: 10000, PerMonth: 100000}
		if entry.PerMinute != nil {
			limits.PerMinute = *entry.PerMinute
		}
		if entry.PerDay != nil {
			limits.PerDay = *entry.PerDay
		}
		if entry.PerMonth != nil {
			limits.PerMonth = *entry.PerMonth
		}

		d := &model.Domain{Domain: entry.Domain, RateLimits: limits, IsActive: true}
		err := st.CreateDomain(ctx, d)
		switch {
		case err == nil:
			added++
		case errors.Is(err, store.ErrDuplicate):
			skipped++
		default:
			return fmt.Errorf("import %q: %w", entry.Domain, err)
		}
	}

	fmt.Printf("Imported %d domain(s), skipped %d duplicate(s)\n", added, skipped)
	return nil
}
