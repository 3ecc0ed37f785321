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
)

const (
	methodScenario   = "scenario"
	methodPlaceOrder = "PlaceOrder"
	methodCreateFilm = "CreateFilm"
	methodGetFilm    = "GetFilm"

	// minOrderValue — минимальная сумма заказа, которую принимает витрина.
	minOrderValue = 10
)

type loadMode string

const (
	// modeContended — все заказы бьют в одни и те же позиции каталога.
	modeContended loadMode = "contended"
	// modeSpread — заказы распределены по всему пулу позиций.
	modeSpread loadMode = "spread"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	films         int
	stock         int
	itemsPerOrder int
	price         int
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport сверяет списанный сток с числом принятых заказов.
type stockReport struct {
	Initial    int  `json:"initial"`
	Remaining  int  `json:"remaining"`
	Consumed   int  `json:"consumed"`
	Expected   int  `json:"expected"`
	Negative   bool `json:"negative"`
	Consistent bool `json:"consistent"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	Accepted          int64                   `json:"accepted"`
	Rejected          int64                   `json:"rejected"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             *stockReport            `json:"stock,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu       sync.Mutex
	methods  map[string]*methodStats
	accepted int64
	rejected int64
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает один вызов. code — HTTP-статус или метка транспортной ошибки.
func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) recordOutcome(accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if accepted {
		c.accepted++
	} else {
		c.rejected++
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Accepted:        c.accepted,
		Rejected:        c.rejected,
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods[methodScenario]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
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
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "storefront HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total orders to place in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeContended), "load mode: contended | spread")
	fs.IntVar(&cfg.films, "films", 4, "number of catalog items seeded for the run")
	fs.IntVar(&cfg.stock, "stock", 50, "initial stock of every seeded item")
	fs.IntVar(&cfg.itemsPerOrder, "items", 2, "distinct items per order (1..3)")
	fs.IntVar(&cfg.price, "price", 5, "price of every seeded item")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

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

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.itemsPerOrder < 1 || cfg.itemsPerOrder > 3 {
		return cfg, errors.New("items must be between 1 and 3")
	}
	if cfg.films < cfg.itemsPerOrder {
		return cfg, errors.New("films must be >= items")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.price < 0 {
		return cfg, errors.New("price must be >= 0")
	}
	if cfg.itemsPerOrder*cfg.price < minOrderValue {
		return cfg, fmt.Errorf("items*price must be >= %d, otherwise every order is rejected", minOrderValue)
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeContended:
		return modeContended, nil
	case modeSpread:
		return modeSpread, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	startedAt := time.Now()
	runID := strconv.FormatInt(startedAt.UnixNano(), 36)
	col := newCollector()

	filmIDs, err := seedFilms(client, cfg, runID, col)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed catalog: %v\n", err)
		os.Exit(1)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(client, cfg, filmIDs, index, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)

	stock, err := verifyStock(client, cfg, filmIDs, result.Accepted, col)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to verify stock: %v\n", err)
		os.Exit(1)
	}
	result.Stock = &stock

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !stock.Consistent {
		os.Exit(1)
	}
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

// pickFilms выбирает позиции для заказа с номером index.
func pickFilms(filmIDs []string, cfg config, index int) []string {
	picked := make([]string, 0, cfg.itemsPerOrder)
	offset := 0
	if cfg.mode == modeSpread {
		offset = index
	}
	for k := 0; k < cfg.itemsPerOrder; k++ {
		picked = append(picked, filmIDs[(offset+k)%len(filmIDs)])
	}
	// Обратный порядок у нечётных заказов создаёт встречные блокировки.
	if index%2 == 1 {
		for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
			picked[i], picked[j] = picked[j], picked[i]
		}
	}
	return picked
}

func runScenario(client *http.Client, cfg config, filmIDs []string, index int, col *collector) error {
	scenarioStart := time.Now()
	code := strconv.Itoa(http.StatusCreated)
	ok := true
	defer func() {
		col.record(methodScenario, time.Since(scenarioStart), code, ok)
	}()

	refs := make([]map[string]string, 0, cfg.itemsPerOrder)
	for _, id := range pickFilms(filmIDs, cfg, index) {
		refs = append(refs, map[string]string{"id": id})
	}

	status, err := callJSON(client, cfg.timeout, http.MethodPost, cfg.baseURL+"/orders", map[string]any{"films": refs}, nil)
	code = statusLabel(status, err)
	accepted := err == nil && status == http.StatusCreated
	rejected := err == nil && status == http.StatusUnprocessableEntity
	ok = accepted || rejected
	col.record(methodPlaceOrder, time.Since(scenarioStart), code, ok)

	if !ok {
		if err == nil {
			err = fmt.Errorf("unexpected status %d", status)
		}
		return err
	}
	col.recordOutcome(accepted)
	return nil
}

func seedFilms(client *http.Client, cfg config, runID string, col *collector) ([]string, error) {
	ids := make([]string, 0, cfg.films)
	for i := 0; i < cfg.films; i++ {
		id := fmt.Sprintf("lt-%s-%d", runID, i)
		body := map[string]any{
			"id":     id,
			"title":  fmt.Sprintf("Load test film %d", i),
			"amount": cfg.stock,
			"price":  cfg.price,
		}

		start := time.Now()
		status, err := callJSON(client, cfg.timeout, http.MethodPost, cfg.baseURL+"/films", body, nil)
		created := err == nil && status == http.StatusCreated
		col.record(methodCreateFilm, time.Since(start), statusLabel(status, err), created)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, fmt.Errorf("create film %s: unexpected status %d", id, status)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func verifyStock(client *http.Client, cfg config, filmIDs []string, accepted int64, col *collector) (stockReport, error) {
	result := stockReport{
		Initial:  cfg.stock * len(filmIDs),
		Expected: int(accepted) * cfg.itemsPerOrder,
	}

	for _, id := range filmIDs {
		var film struct {
			Amount int `json:"amount"`
		}
		start := time.Now()
		status, err := callJSON(client, cfg.timeout, http.MethodGet, cfg.baseURL+"/films/"+id, nil, &film)
		col.record(methodGetFilm, time.Since(start), statusLabel(status, err), err == nil && status == http.StatusOK)
		if err != nil {
			return stockReport{}, err
		}
		if status != http.StatusOK {
			return stockReport{}, fmt.Errorf("get film %s: unexpected status %d", id, status)
		}
		if film.Amount < 0 {
			result.Negative = true
		}
		result.Remaining += film.Amount
	}

	result.Consumed = result.Initial - result.Remaining
	result.Consistent = !result.Negative && result.Consumed == result.Expected
	return result, nil
}

func callJSON(client *http.Client, timeout time.Duration, method, url string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func statusLabel(status int, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "transport_error"
	default:
		return strconv.Itoa(status)
	}
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

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d accepted=%d rejected=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.Accepted,
		result.Rejected,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)
	if result.Stock != nil {
		fmt.Printf("stock: initial=%d remaining=%d consumed=%d expected=%d consistent=%t\n",
			result.Stock.Initial,
			result.Stock.Remaining,
			result.Stock.Consumed,
			result.Stock.Expected,
			result.Stock.Consistent,
		)
	}

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == methodScenario {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
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
