package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ledgerly/practice-engine/api"
	"github.com/ledgerly/practice-engine/calendar"
	"github.com/ledgerly/practice-engine/engine"
	"github.com/spf13/cobra"
)

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.store, a.generator, a.logger)
	router := api.NewRouter(handler, a.cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// =============================================================================
// GENERATE
// =============================================================================

type generateOptions struct {
	firm         string
	period       string
	clients      []string
	code         string
	actor        string
	skipExisting bool
	dryRun       bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one period's compliance tasks for a firm",
		Long: `Generates tasks for every eligible client and compliance type of a period.

Periods are compact keys: 2024-03 (month), 2024-Q3 (fiscal quarter),
FY2024 (fiscal year April 2024 - March 2025).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.firm, "firm", "", "Firm ID")
	cmd.Flags().StringVar(&opts.period, "period", "", "Period key (2024-03, 2024-Q3, FY2024)")
	cmd.Flags().StringSliceVar(&opts.clients, "clients", nil, "Client IDs (default: all clients)")
	cmd.Flags().StringVar(&opts.code, "code", "", "Single compliance code (default: all matching the period)")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "User recorded as assigned_by on every task")
	cmd.Flags().BoolVar(&opts.skipExisting, "skip-existing", false, "Skip tasks already generated for the period")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Preview without saving")
	for _, name := range []string{"firm", "period", "actor"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	period, err := engine.ParsePeriod(opts.period)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := engine.GenerateRequest{
		FirmID:         engine.FirmID(opts.firm),
		Period:         period,
		ComplianceCode: opts.code,
		AssignedBy:     opts.actor,
		SkipExisting:   opts.skipExisting,
	}
	if cmd.Flags().Changed("clients") {
		req.ClientIDs = []engine.ClientID{}
		for _, id := range opts.clients {
			if id = strings.TrimSpace(id); id != "" {
				req.ClientIDs = append(req.ClientIDs, engine.ClientID(id))
			}
		}
	}

	var result *engine.Result
	if opts.dryRun {
		result, err = a.generator.Preview(ctx, req)
	} else {
		result, err = a.generator.Generate(ctx, req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s := result.Batch.Summary
	verb := "Generated"
	if opts.dryRun {
		verb = "Would generate"
	}
	fmt.Fprintf(out, "%s %d tasks for %s (defined %d, random %d, skipped %d, duplicates %d, fees %s)\n",
		verb, s.Total, period.Label(), s.Defined, s.Random, s.Skipped, s.Duplicates, s.TotalFees.StringFixed(2))
	for _, t := range result.Batch.Tasks {
		fmt.Fprintf(out, "  %s  %-12s %-40s -> %s\n", t.DueDate, t.ClientID, t.Title, t.StaffID)
	}
	if result.RunID != "" {
		fmt.Fprintf(out, "Run %s\n", result.RunID)
	}
	return nil
}

// =============================================================================
// SEED
// =============================================================================

func newSeedCmd() *cobra.Command {
	var (
		firm    string
		calFile string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a compliance calendar into a firm",
		Long: `Loads the standard calendar, or a YAML/JSON calendar file, into a firm.
Without --firm the calendar is stored as global entries shared by every firm.
Re-seeding updates existing entries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			firmID := engine.FirmID(firm)
			types := calendar.Defaults(firmID)
			if calFile != "" {
				if types, err = calendar.LoadFile(calFile, firmID); err != nil {
					return err
				}
			}

			if err := a.store.SaveComplianceTypes(ctx, types); err != nil {
				return err
			}

			scope := firm
			if scope == "" {
				scope = "global"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d compliance types (%s)\n", len(types), scope)
			return nil
		},
	}

	cmd.Flags().StringVar(&firm, "firm", "", "Firm ID (default: global)")
	cmd.Flags().StringVar(&calFile, "calendar", "", "Calendar file (.yaml, .yml or .json)")
	return cmd
}
