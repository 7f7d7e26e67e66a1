// Package health отдаёт состояние зависимостей витрины для /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status: итог проверки.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report: ответ /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// CheckFunc проверяет зависимость; ошибка означает, что она недоступна.
type CheckFunc func(ctx context.Context) error

type registeredCheck struct {
	fn       CheckFunc
	critical bool
}

// Handler собирает проверки. Упавшая критичная проверка делает сервис
// unhealthy, некритичная (например, Kafka) даёт degraded.
type Handler struct {
	mu         sync.RWMutex
	registered map[string]registeredCheck
	version    string
	timeout    time.Duration
	startTime  time.Time
}

// NewHandler создаёт обработчик; timeout ограничивает каждую проверку.
func NewHandler(version string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Handler{
		registered: make(map[string]registeredCheck),
		version:    version,
		timeout:    timeout,
		startTime:  time.Now(),
	}
}

// Register добавляет или заменяет проверку.
func (h *Handler) Register(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered[name] = registeredCheck{fn: fn, critical: critical}
}

// Report выполняет все проверки параллельно.
func (h *Handler) Report(ctx context.Context) Report {
	h.mu.RLock()
	snapshot := make(map[string]registeredCheck, len(h.registered))
	for name, p := range h.registered {
		snapshot[name] = p
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(snapshot))
	)
	for name, p := range snapshot {
		wg.Add(1)
		go func(name string, p registeredCheck) {
			defer wg.Done()
			check := h.run(ctx, name, p)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Report{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

func (h *Handler) run(ctx context.Context, name string, p registeredCheck) Check {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(ctx)
	check := Check{
		Name:       name,
		Status:     StatusHealthy,
		Critical:   p.critical,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Message = err.Error()
		check.Status = StatusDegraded
		if p.critical {
			check.Status = StatusUnhealthy
		}
	}
	return check
}

// ServeHTTP отдаёт полный отчёт; 503, если упала критичная проверка.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report(r.Context())

	statusCode := http.StatusOK
	if report.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(report)
}

// Readiness: короткий ответ для балансировщика.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.Report(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Liveness всегда отвечает 200, пока процесс жив.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
