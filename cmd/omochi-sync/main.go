package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"omochi-bot/internal/app"
	"omochi-bot/internal/config"
	"omochi-bot/internal/logging"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	var a *app.App
	rootCmd := &cobra.Command{
		Use:           "omochi-sync",
		Short:         "Run the Notion sync jobs once",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			a, err = app.New(cmd.Context(), cfg, logging.New(cfg.LogLevel, cfg.LogFormat))
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "hourly",
		Short: "Create or refresh today's page",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.SyncHourly(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})

	var date string
	finalizeCmd := &cobra.Command{
		Use:   "finalize",
		Short: "Rewrite a finished day's page with its full content",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.FinalizeDay(cmd.Context(), date)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	finalizeCmd.Flags().StringVar(&date, "date", "", "day to finalize (YYYY-MM-DD)")
	_ = finalizeCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(finalizeCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "monthly",
		Short: "Export the next pending user of last month",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.ExportMonthly(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show last month's export progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.MonthlyStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
