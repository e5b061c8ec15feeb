package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"claimsaga/internal/app"
	"claimsaga/internal/config"
	"claimsaga/internal/server"
	"claimsaga/internal/telemetry"
	claimsagasdk "claimsaga/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "claimsaga",
	Short: "Claimsaga CLI",
	Long: `Claimsaga runs insurance claims through a saga of fraud verification,
valuation and payment, recording an audit trail and registering VINs for
monitoring.

Claim states: FILED -> VERIFIED -> VALUATED -> PAID or APPROVED; a claim that
fails fraud verification stops at ESCALATED. All state lives in memory.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLAIMSAGA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("url", "http://127.0.0.1:8080", "claimsaga API base URL for client commands")
	rootCmd.PersistentFlags().String("config", "", "path to claimsaga.yml")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath, services string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Service.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Service.BasePath = basePath
			}
			if cmd.Flags().Changed("services") {
				cfg.Service.Services = splitList(services)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			shutdownTracing, err := telemetry.Setup(ctx, cfg.Service.Name, cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			logger := log.Default()
			svc, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{Services: svc, BasePath: cfg.Service.BasePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Service.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving %s (%s) on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n",
				cfg.Service.Name, strings.Join(cfg.Service.Services, ","), cfg.Service.Addr, cfg.Service.BasePath)
			serveErr := srv.ListenAndServe()

			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := svc.Close(closeCtx); err != nil {
				logger.Printf("serve: close services: %v", err)
			}
			if err := shutdownTracing(closeCtx); err != nil {
				logger.Printf("serve: flush traces: %v", err)
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	cmd.Flags().StringVar(&services, "services", config.ServiceAll, "comma separated services to mount (all, orchestrator, verification, valuation, payment, audit, monitor)")
	return cmd
}

func claimCmd() *cobra.Command {
	c := &cobra.Command{Use: "claim", Short: "File and inspect claims"}
	c.AddCommand(claimFileCmd())
	c.AddCommand(claimGetCmd())
	c.AddCommand(claimListCmd())
	return c
}

func claimFileCmd() *cobra.Command {
	var in claimsagasdk.ClaimInput
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File a claim and run the saga",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.VIN == "" || in.LossDate == "" {
				return fmt.Errorf("--vin and --loss-date required")
			}
			claim, err := client().FileClaim(cmd.Context(), in)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(claim)
			}
			printClaims([]claimsagasdk.Claim{claim})
			return nil
		},
	}
	cmd.Flags().StringVar(&in.PolicyID, "policy", "", "policy id")
	cmd.Flags().StringVar(&in.HolderName, "holder", "", "policy holder name")
	cmd.Flags().StringVar(&in.VIN, "vin", "", "vehicle identification number (11-32 characters)")
	cmd.Flags().StringVar(&in.LossDate, "loss-date", "", "ISO-8601 loss date")
	cmd.Flags().StringVar(&in.LossType, "loss-type", "", "loss type (hail, flood, collision, theft, vandalism)")
	cmd.Flags().StringVar(&in.Details, "details", "", "free-text details")
	return cmd
}

func claimGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <claim-id>",
		Short: "Show a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claim, err := client().GetClaim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(claim)
		},
	}
}

func claimListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List claims, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := client().ListClaims(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(claims)
			}
			printClaims(claims)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	c := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	c.AddCommand(auditTailCmd())
	return c
}

func auditTailCmd() *cobra.Command {
	var n int
	var claimID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				entries []claimsagasdk.AuditEntry
				err     error
			)
			if claimID != "" {
				entries, err = client().AuditTrail(cmd.Context(), claimID)
			} else {
				entries, err = client().RecentAudit(cmd.Context(), n)
			}
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(entries)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Time", "Event", "Claim"})
			for _, e := range entries {
				claim, _ := e.Data["claimId"].(string)
				tw.AppendRow(table.Row{e.ID, e.TS, e.EventType, claim})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&claimID, "claim", "", "only events for this claim")
	return cmd
}

func watchCmd() *cobra.Command {
	c := &cobra.Command{Use: "watch", Short: "Inspect monitored VINs"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List monitored VINs",
		RunE: func(cmd *cobra.Command, args []string) error {
			watches, err := client().Watches(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(watches)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"VIN", "Reason", "Claim", "Since"})
			for _, w := range watches {
				tw.AppendRow(table.Row{w.VIN, w.Reason, w.ClaimID, w.StartedAt})
			}
			tw.Render()
			return nil
		},
	})
	return c
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	return c
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func client() *claimsagasdk.Client {
	return claimsagasdk.New(viper.GetString("url"))
}

func printClaims(claims []claimsagasdk.Claim) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Claim", "Status", "VIN", "Loss", "Score", "Payout", "Txn"})
	for _, c := range claims {
		score, payout, txn := "", "", ""
		if c.Verification != nil {
			score = fmt.Sprintf("%.3f", c.Verification.FraudScore)
		}
		if c.Valuation != nil {
			payout = fmt.Sprintf("%.0f", c.Valuation.PayoutAmount)
		}
		if c.Payment != nil {
			txn = c.Payment.TransactionID
		}
		tw.AppendRow(table.Row{c.ClaimID, c.Status, c.VIN, c.LossType, score, payout, txn})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
