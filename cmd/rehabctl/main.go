// Package main provides rehabctl, the operations CLI for the coaching
// backend: dev token minting, catalog inspection and DLQ maintenance.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/config"
	"example.com/rehabcoach/internal/outbox"
)

var (
	tokenSubject string
	tokenTenant  string
	tokenScopes  string
	tokenTTL     time.Duration

	catalogType     string
	catalogCategory string
	catalogTier     string

	dlqBatchSize int
)

func main() {
	_ = godotenv.Load()

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "rehabctl",
		Short:        "Operations CLI for the rehab coaching backend",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newDLQCmd())
	return rootCmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Args:  cobra.NoArgs,
		RunE:  runTokenCmd,
	}
	cmd.Flags().StringVar(&tokenSubject, "subject", "dev-user", "token subject (user id)")
	cmd.Flags().StringVar(&tokenTenant, "tenant", "dev-clinic", "tenant id claim")
	cmd.Flags().StringVar(&tokenScopes, "scopes", "sessions:write,progress:read,reminders:read,reminders:write,catalog:read", "comma-separated scopes")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	return cmd
}

func runTokenCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	scopes := make([]string, 0)
	for _, scope := range strings.Split(tokenScopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":       cfg.JWTIssuer,
		"sub":       tokenSubject,
		"tenant_id": tokenTenant,
		"scopes":    scopes,
		"iat":       now.Unix(),
		"exp":       now.Add(tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the embedded exercise catalog",
		Args:  cobra.NoArgs,
		RunE:  runCatalogCmd,
	}
	cmd.Flags().StringVar(&catalogType, "type", "", "filter by discipline (physical, speech, cognitive)")
	cmd.Flags().StringVar(&catalogCategory, "category", "", "filter by category")
	cmd.Flags().StringVar(&catalogTier, "tier", "", "filter by difficulty tier")
	return cmd
}

func runCatalogCmd(cmd *cobra.Command, _ []string) error {
	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if catalogType == "" {
		counts := make(map[catalog.Type]int)
		total := 0
		for _, t := range []catalog.Type{catalog.TypePhysical, catalog.TypeSpeech, catalog.TypeCognitive} {
			n := len(cat.Filter(t, "", ""))
			counts[t] = n
			total += n
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d exercises (physical=%d speech=%d cognitive=%d)\n",
			total, counts[catalog.TypePhysical], counts[catalog.TypeSpeech], counts[catalog.TypeCognitive])
		return nil
	}

	typ, err := catalog.ParseType(catalogType)
	if err != nil {
		return err
	}
	var tier catalog.Tier
	if catalogTier != "" {
		if tier, err = catalog.ParseTier(catalogTier); err != nil {
			return err
		}
	}

	for _, ex := range cat.Filter(typ, catalogCategory, tier) {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-12s %-14s %-12s %s\n", ex.ID, ex.Type, ex.Category, ex.Tier, ex.Name)
	}
	return nil
}

func newDLQCmd() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead-letter queue maintenance",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of due DLQ entries",
		Args:  cobra.NoArgs,
		RunE:  runDLQRunCmd,
	}
	runCmd.Flags().IntVar(&dlqBatchSize, "batch-size", 50, "entries per sweep")

	dlqCmd.AddCommand(runCmd)
	return dlqCmd
}

func runDLQRunCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	processed, err := manager.RunOnce(ctx, dlqBatchSize)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %d dlq entries\n", processed)
	return nil
}
