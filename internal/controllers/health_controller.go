package controllers

import (
	"context"
	"fmt"
	json "github.com/goccy/go-json"
	"net/http"
	"streamflix/internal/services"
	"streamflix/internal/structures"
	"time"
)

const pingTimeout = 2 * time.Second

type HealthController struct {
	service   services.LedgerServiceInterface
	checks    map[string]services.Pinger
	driver    string
	startTime time.Time
}

type healthResponse struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Ledgers       int               `json:"ledgers"`
	Storage       string            `json:"storage"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// NewHealthController pings the repository and report guard when they are
// remote backends. In-process implementations are not checked.
func NewHealthController(service services.LedgerServiceInterface, repo services.LedgerRepository, guard services.ReportGuard, conf *structures.Config) *HealthController {
	checks := make(map[string]services.Pinger)
	if p, ok := repo.(services.Pinger); ok {
		checks["storage"] = p
	}
	if p, ok := guard.(services.Pinger); ok {
		checks["reportGuard"] = p
	}
	driver := conf.Storage.Driver
	if driver == "" {
		driver = "file"
	}
	return &HealthController{
		service:   service,
		checks:    checks,
		driver:    driver,
		startTime: time.Now(),
	}
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Ledgers:       hc.service.LedgerCount(),
		Storage:       hc.driver,
	}

	status := http.StatusOK
	if len(hc.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(hc.checks))
		for name, p := range hc.checks {
			if err := p.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}
