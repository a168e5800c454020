package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// simulate drives full scripted conversations against a running
// api-server: register a fresh patient, walk the booking flow, and always
// pick option 1 so concurrent sessions race for the same slot. The
// summary shows how many races ended in a booking versus a re-offer.

type SimConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL: "http://localhost:8080",
		Duration:   30 * time.Second,
		Workers:    10,
	}
	if v := os.Getenv("SIM_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	return cfg
}

type Metrics struct {
	Conversations int64
	Booked        int64
	Reoffered     int64
	Failed        int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	return avg, p50, p95
}

type chatReply struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate starting url=%s duration=%s workers=%d", cfg.APIBaseURL, cfg.Duration, cfg.Workers)

	gofakeit.Seed(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	metrics := &Metrics{}
	client := &http.Client{Timeout: 15 * time.Second}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				runConversation(ctx, client, cfg.APIBaseURL, metrics)
			}
		}()
	}
	wg.Wait()

	avg, p50, p95 := metrics.Stats()
	fmt.Println("=== simulation summary ===")
	fmt.Printf("conversations: %d\n", atomic.LoadInt64(&metrics.Conversations))
	fmt.Printf("booked:        %d\n", atomic.LoadInt64(&metrics.Booked))
	fmt.Printf("reoffered:     %d (slot races lost)\n", atomic.LoadInt64(&metrics.Reoffered))
	fmt.Printf("failed:        %d\n", atomic.LoadInt64(&metrics.Failed))
	fmt.Printf("latency avg=%s p50=%s p95=%s\n", avg, p50, p95)
}

// runConversation scripts one patient from "oi" to a confirmed booking.
// Every choice is "1", which maximizes contention on the first slot.
func runConversation(ctx context.Context, client *http.Client, baseURL string, metrics *Metrics) {
	atomic.AddInt64(&metrics.Conversations, 1)
	sessionID := uuid.New().String()

	script := []string{
		"oi",
		gofakeit.Numerify("###########"),
		gofakeit.Name() + " " + gofakeit.LastName(),
		fmt.Sprintf("%02d/%02d/%d", gofakeit.Number(1, 28), gofakeit.Number(1, 12), gofakeit.Number(1950, 2005)),
		gofakeit.Numerify("119########"),
		"pular",
		"particular",
		"1", // location
		"1", // specialty
		"1", // slot
		"sim",
	}

	for _, msg := range script {
		reply, err := sendChat(ctx, client, baseURL, sessionID, msg, metrics)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&metrics.Failed, 1)
			}
			return
		}

		switch {
		case reply.State == "finished" && reply.Kind == "success":
			atomic.AddInt64(&metrics.Booked, 1)
			return
		case reply.Kind == "slots" && msg == "sim":
			// Chosen slot was taken underneath us; count and retry once
			// with the fresh list.
			atomic.AddInt64(&metrics.Reoffered, 1)
			if retryBooking(ctx, client, baseURL, sessionID, metrics) {
				atomic.AddInt64(&metrics.Booked, 1)
			}
			return
		case reply.Kind == "error" && reply.State == "initial":
			atomic.AddInt64(&metrics.Failed, 1)
			return
		}
	}
	atomic.AddInt64(&metrics.Failed, 1)
}

func retryBooking(ctx context.Context, client *http.Client, baseURL, sessionID string, metrics *Metrics) bool {
	for _, msg := range []string{strconv.Itoa(rand.Intn(3) + 1), "sim"} {
		reply, err := sendChat(ctx, client, baseURL, sessionID, msg, metrics)
		if err != nil {
			return false
		}
		if reply.State == "finished" && reply.Kind == "success" {
			return true
		}
	}
	return false
}

func sendChat(ctx context.Context, client *http.Client, baseURL, sessionID, message string, metrics *Metrics) (*chatReply, error) {
	body, _ := json.Marshal(map[string]string{"session_id": sessionID, "message": message})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply chatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat returned status %d", resp.StatusCode)
	}
	metrics.Record(time.Since(start))
	return &reply, nil
}
