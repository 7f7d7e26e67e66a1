package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	codeOK               = "OK"
	codeShortage         = "INSUFFICIENT_INVENTORY"
	codeTransport        = "TRANSPORT_ERROR"
)

type loadMode string

const (
	modeCheckout    loadMode = "checkout"
	modeCheckoutPay loadMode = "checkout-pay"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	variantID   string
	quantity    int
	sessionTag  string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	RejectedScenarios int64                 `json:"rejected_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

// record считает нехватку остатка ожидаемым исходом: под нагрузкой склад заканчивается.
func (c *collector) record(step string, latency time.Duration, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[step]
	if !ok {
		stats = &stepStats{codes: make(map[string]int64)}
		c.steps[step] = stats
	}

	stats.calls++
	if code == codeOK || code == codeShortage {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Steps:           make(map[string]stepReport, len(c.steps)),
	}

	if scenario := c.steps["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.RejectedScenarios = scenario.codes[codeShortage]
		result.SuccessScenarios = scenario.success - result.RejectedScenarios
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.steps {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Steps[name] = stepReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return result
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "storefront base URL")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckoutPay), "load mode: checkout | checkout-pay")
	fs.StringVar(&cfg.variantID, "variant", "", "variant id to buy")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	fs.StringVar(&cfg.sessionTag, "session-tag", "load", "guest session id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case strings.TrimSpace(cfg.variantID) == "":
		return cfg, errors.New("variant is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.sessionTag) == "":
		return cfg, errors.New("session-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutPay:
		return modeCheckoutPay, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	result := runLoad(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Fatal("failed to write report")
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func runLoad(ctx context.Context, cfg config, client *http.Client) report {
	startedAt := time.Now()
	runID := strconv.FormatInt(startedAt.UnixNano(), 36)
	col := newCollector()
	sf := &storefront{baseURL: cfg.baseURL, client: client, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, sf, cfg, fmt.Sprintf("%s-%s-%d", cfg.sessionTag, runID, id))
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()
	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario проходит путь гостя: корзина, оформление и, в режиме checkout-pay, оплата.
func runScenario(ctx context.Context, sf *storefront, cfg config, session string) {
	start := time.Now()
	code := codeOK
	defer func() { sf.col.record("scenario", time.Since(start), code) }()

	var cart struct {
		ID string `json:"id"`
	}
	code = sf.call(ctx, "add_item", http.MethodPost, "/cart/items", "", map[string]any{
		"variantId": cfg.variantID,
		"quantity":  cfg.quantity,
		"sessionId": session,
	}, &cart)
	if code != codeOK {
		return
	}

	var order struct {
		ID string `json:"id"`
	}
	code = sf.call(ctx, "create_order", http.MethodPost, "/orders", "order-"+session, map[string]any{
		"cartId":    cart.ID,
		"sessionId": session,
		"email":     session + "@load.test",
		"shippingAddress": domain.Address{
			Name: "Load Test", Line1: "1 Oven Street", City: "Springfield", PostalCode: "12345", Country: "US",
		},
	}, &order)
	if code != codeOK || cfg.mode != modeCheckoutPay {
		return
	}

	code = sf.call(ctx, "pay", http.MethodPost, "/payments", "pay-"+session, map[string]any{
		"orderId":   order.ID,
		"method":    string(domain.PaymentMethodCard),
		"sessionId": session,
	}, nil)
}

type storefront struct {
	baseURL string
	client  *http.Client
	col     *collector
}

// call выполняет запрос и возвращает OK, код ошибки API или HTTP-статус.
func (s *storefront) call(ctx context.Context, step, method, path, idempotencyKey string, body, out any) string {
	start := time.Now()
	code := s.do(ctx, method, path, idempotencyKey, body, out)
	s.col.record(step, time.Since(start), code)
	return code
}

func (s *storefront) do(ctx context.Context, method, path, idempotencyKey string, body, out any) string {
	raw, err := json.Marshal(body)
	if err != nil {
		return codeTransport
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return codeTransport
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return codeTransport
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return codeTransport
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(payload, &envelope) == nil && envelope.Error.Code != "" {
			return envelope.Error.Code
		}
		return strconv.Itoa(resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return codeTransport
		}
	}
	return codeOK
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d rejected=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.RejectedScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min, result.ScenarioLatencyMs.Avg, result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		if name != "scenario" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Steps[name]
		fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
