package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	baseURL      = "http://127.0.0.1:18090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numUsers     = 500
	numContent   = 40
	// share of seeding reports re-sent with an already used report id
	duplicateRate = 0.05
)

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

func main() {
	fmt.Println("=== StreamFlix Ledger Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s\n", numWorkers, testDuration)
	fmt.Printf("Users: %d | Content: %d\n\n", numUsers, numContent)

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	fmt.Println("\n--- Phase 1: Seeding reports (POST /metrics/seeding) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doSeeding(rng)
	})

	fmt.Println("\n--- Phase 2: Mixed load (70% POST, 30% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.70:
			return doSeeding(rng)
		case r < 0.82:
			return doGetUser(rng, "/metrics/user")
		case r < 0.90:
			return doGetUser(rng, "/metrics/user/history")
		default:
			return doGet("/metrics/leaderboard", "")
		}
	})

	fmt.Println("\n--- Phase 3: Read-heavy load (10% POST, 90% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.10:
			return doSeeding(rng)
		case r < 0.40:
			return doGetUser(rng, "/metrics/user")
		case r < 0.55:
			return doGetUser(rng, "/metrics/user/history")
		default:
			return doGet("/metrics/leaderboard", "")
		}
	})

	fmt.Println("\n--- Leaderboard ordering check ---")
	checkLeaderboard()
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + strings.Repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + strings.Repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

// recentReports holds report ids already sent so a share of requests can be replayed.
var (
	recentMu      sync.Mutex
	recentReports = make(map[string]string)
)

func reportID(rng *rand.Rand, user string) string {
	recentMu.Lock()
	defer recentMu.Unlock()
	if id, ok := recentReports[user]; ok && rng.Float64() < duplicateRate {
		return id
	}
	id := uuid.NewString()
	recentReports[user] = id
	return id
}

func randomUser(rng *rand.Rand) string {
	return fmt.Sprintf("load-%d", rng.Intn(numUsers)+1)
}

func doSeeding(rng *rand.Rand) result {
	user := randomUser(rng)
	body := map[string]interface{}{
		"contentId":      fmt.Sprintf("content-%d", rng.Intn(numContent)+1),
		"peersConnected": rng.Intn(8),
		"seedingTime":    2,
		"isActive":       rng.Float64() < 0.9,
		"reportId":       reportID(rng, user),
	}
	if rng.Float64() < 0.5 {
		body["bytesUploaded"] = rng.Intn(8 << 20)
	} else {
		body["uploadSpeed"] = fmt.Sprintf("%d", rng.Intn(4<<20))
	}

	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/metrics/seeding", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", user)
	return send("POST /metrics/seeding", req)
}

func doGetUser(rng *rand.Rand, path string) result {
	return doGet(path, randomUser(rng))
}

func doGet(path, user string) result {
	req, _ := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	return send("GET "+path, req)
}

// send treats 404 as success for user reads, since not every user has reported yet.
func send(endpoint string, req *http.Request) result {
	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	ok := resp.StatusCode == http.StatusOK || (req.Method == http.MethodGet && resp.StatusCode == http.StatusNotFound)
	return result{endpoint, resp.StatusCode, lat, !ok}
}

func checkLeaderboard() {
	resp, err := httpClient.Get(baseURL + "/metrics/leaderboard")
	if err != nil {
		fmt.Printf("  FAILED: %s\n", err)
		return
	}
	defer resp.Body.Close()

	var env struct {
		Leaderboard []struct {
			Position int     `json:"position"`
			UserID   string  `json:"userId"`
			Tokens   float64 `json:"tokens"`
		} `json:"leaderboard"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		fmt.Printf("  FAILED: decode: %s\n", err)
		return
	}
	for i := 1; i < len(env.Leaderboard); i++ {
		prev, cur := env.Leaderboard[i-1], env.Leaderboard[i]
		if prev.Tokens < cur.Tokens || (prev.Tokens == cur.Tokens && prev.UserID > cur.UserID) {
			fmt.Printf("  FAILED: position %d (%s %.2f) ranks above %d (%s %.2f)\n",
				prev.Position, prev.UserID, prev.Tokens, cur.Position, cur.UserID, cur.Tokens)
			return
		}
	}
	for _, e := range env.Leaderboard {
		fmt.Printf("  %2d. %-12s %12.2f\n", e.Position, e.UserID, e.Tokens)
	}
	fmt.Println("  OK")
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
