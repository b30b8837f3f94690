package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/clinic-scheduling/internal/db"
	"github.com/medibook/clinic-scheduling/internal/schedule"
)

// simulate races many users for one (doctor, date, time) triple through the
// live API and verifies the no-double-booking property: exactly one request
// succeeds, everyone else gets a conflict.

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	PostgresDSN string
}

type Metrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]
	return
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulate starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, err := pickDoctor(ctx, pool)
	if err != nil {
		log.Fatalf("pick doctor: %v", err)
	}

	userIDs, err := pickUsers(ctx, pool, cfg.Workers)
	if err != nil {
		log.Fatalf("pick users: %v", err)
	}

	// Tomorrow 10:00 is always inside the default window and never clamped.
	slotStart := tomorrowAt(10, 0)
	dateKey := schedule.NewDateKey(slotStart)
	timeLabel := schedule.NewTimeLabel(slotStart)

	log.Printf("racing %d workers for doctor=%s date=%s time=%s", cfg.Workers, doctorID, dateKey, timeLabel)

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			<-start

			began := time.Now()
			status, err := postBooking(client, cfg.APIBaseURL, userID, doctorID, dateKey, timeLabel)
			if err != nil {
				log.Printf("booking request failed: %v", err)
				metrics.Record(time.Since(began), 0)
				return
			}
			metrics.Record(time.Since(began), status)
		}(userIDs[i%len(userIDs)])
	}

	close(start)
	wg.Wait()

	avg, min, max, p50, p95 := metrics.Stats()
	fmt.Printf("total=%d success=%d conflict=%d error=%d\n",
		metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	fmt.Printf("latency avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)

	if metrics.Success != 1 {
		log.Printf("FAIL: expected exactly one successful booking, got %d", metrics.Success)
		os.Exit(1)
	}
	log.Println("PASS: exactly one booking succeeded")
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:     50,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func pickDoctor(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		SELECT id FROM doctors WHERE available = true ORDER BY created_at LIMIT 1
	`).Scan(&id)
	return id, err
}

func pickUsers(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no users seeded, run cmd/seed first")
	}
	return ids, nil
}

func tomorrowAt(hour, minute int) time.Time {
	t := time.Now().AddDate(0, 0, 1)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.Local)
}

func postBooking(client *http.Client, baseURL string, userID, doctorID uuid.UUID, date schedule.DateKey, label schedule.TimeLabel) (int, error) {
	body, err := json.Marshal(map[string]string{
		"user_id":    userID.String(),
		"doctor_id":  doctorID.String(),
		"date_key":   string(date),
		"time_label": string(label),
	})
	if err != nil {
		return 0, err
	}

	resp, err := client.Post(baseURL+"/api/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
