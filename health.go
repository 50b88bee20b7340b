package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"perp-gateway/pkg/config"
)

// Check states, worst last.
const (
	statusHealthy   = "HEALTHY"
	statusDegraded  = "DEGRADED"
	statusUnhealthy = "UNHEALTHY"
)

type checkResult struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type healthReport struct {
	Overall  string        `json:"overall"`
	Services []checkResult `json:"services"`
}

func newHealthCmd() *cobra.Command {
	var (
		asJSON bool
		url    string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check config, storage, venue and a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if url == "" {
				url = fmt.Sprintf("http://localhost:%s/health", cfg.Server.Port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			report := runHealthChecks(ctx, cfg, url)
			printReport(cmd.OutOrStdout(), report, asJSON)
			if report.Overall == statusUnhealthy {
				return errors.New("gateway unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().StringVar(&url, "url", "", "health endpoint (default http://localhost:<server.port>/health)")
	return cmd
}

func runHealthChecks(ctx context.Context, cfg *config.Config, url string) healthReport {
	report := healthReport{Overall: statusHealthy}
	for _, check := range []func() checkResult{
		func() checkResult { return checkConfig(cfg) },
		func() checkResult { return checkStorage(ctx, cfg) },
		func() checkResult { return checkVenue(ctx, cfg) },
		func() checkResult { return checkServer(ctx, url) },
	} {
		res := check()
		res.Timestamp = time.Now()
		report.Services = append(report.Services, res)
		report.Overall = worse(report.Overall, res.Status)
	}
	return report
}

func worse(a, b string) string {
	rank := map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func checkConfig(cfg *config.Config) checkResult {
	res := checkResult{Service: "Configuration", Status: statusHealthy}
	if err := cfg.Validate(); err != nil {
		res.Status = statusUnhealthy
		res.Message = err.Error()
		return res
	}
	res.Message = fmt.Sprintf("venue=%s port=%s dry_run=%t", cfg.Venue.Name, cfg.Server.Port, cfg.DryRun())
	return res
}

func checkStorage(ctx context.Context, cfg *config.Config) checkResult {
	res := checkResult{Service: "Credential store", Status: statusHealthy}
	database, _, err := openStore(cfg)
	if err != nil {
		res.Status = statusUnhealthy
		res.Message = err.Error()
		return res
	}
	defer database.Close()

	if err := database.DB.PingContext(ctx); err != nil {
		res.Status = statusUnhealthy
		res.Message = fmt.Sprintf("ping failed: %v", err)
		return res
	}
	rows, err := database.Queries().ListCredentials(ctx)
	if err != nil {
		res.Status = statusDegraded
		res.Message = fmt.Sprintf("list failed: %v", err)
		return res
	}
	res.Message = fmt.Sprintf("%d wallet(s) registered", len(rows))
	return res
}

func checkVenue(ctx context.Context, cfg *config.Config) checkResult {
	res := checkResult{Service: "Venue", Status: statusHealthy}
	info, _, err := venueClients(cfg)
	if err != nil {
		res.Status = statusUnhealthy
		res.Message = err.Error()
		return res
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.Venue.Timeout)
	defer cancel()

	start := time.Now()
	assets, err := info.Meta(callCtx)
	if err != nil {
		res.Status = statusUnhealthy
		res.Message = fmt.Sprintf("%s meta failed: %v", cfg.Venue.Name, err)
		return res
	}
	res.Message = fmt.Sprintf("%s: %d assets in %s", cfg.Venue.Name, len(assets), time.Since(start).Round(time.Millisecond))
	return res
}

func checkServer(ctx context.Context, url string) checkResult {
	res := checkResult{Service: "API server", Status: statusHealthy}
	resp, err := resty.New().SetTimeout(5 * time.Second).R().SetContext(ctx).Get(url)
	if err != nil {
		res.Status = statusDegraded
		res.Message = fmt.Sprintf("not reachable: %v", err)
		return res
	}
	if !resp.IsSuccess() {
		res.Status = statusDegraded
		res.Message = fmt.Sprintf("HTTP %d", resp.StatusCode())
		return res
	}
	res.Message = "running"
	return res
}

func printReport(out io.Writer, report healthReport, asJSON bool) {
	if asJSON {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(out, string(data))
		return
	}
	for _, svc := range report.Services {
		icon := "✓"
		switch svc.Status {
		case statusUnhealthy:
			icon = "✗"
		case statusDegraded:
			icon = "⚠"
		}
		fmt.Fprintf(out, "%s %-18s %-9s %s\n", icon, svc.Service, svc.Status, svc.Message)
	}
	fmt.Fprintf(out, "\nOverall: %s\n", report.Overall)
}
