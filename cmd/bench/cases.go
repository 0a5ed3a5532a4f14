// README: Bench cases: environment checks, lifecycle walk-through, accept race, consistency and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"taxi/internal/modules/call"
	"taxi/internal/types"
)

const identityHeader = "X-User-Email"

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	rideID int64
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	passenger, driver := r.cfg.PassengerEmail, r.cfg.DriverEmail
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from migrations/0001_init.sql",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		httpCaseMethod("API: health", http.MethodGet, "/health", "", nil, 200),
		{
			Name:  "Seed: driver registered and WAITING",
			Focus: "driver rows come from registration; bench upserts one",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				_, err := r.db.Exec(ctx, `
					INSERT INTO drivers (user_id, car_number, capacity, car_name, license, phone_number, status)
					VALUES ($1, 'BENCH01', 4, 'Bench Car', 'BENCH-LIC', '010-0000-0000', 'WAITING')
					ON CONFLICT (user_id) DO UPDATE SET status = 'WAITING', updated_at = NOW()`,
					r.cfg.DriverUserID)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},

		// Identity
		httpCase("Auth: missing identity -> 401", "/api/ride/find", "", map[string]any{"latitude": 1, "longitude": 1}, 401),

		// Call intake and proximity search
		httpCase("Call: passenger request -> 202", "/api/ride/call", passenger, map[string]any{
			"startLat": 37.5665, "startLng": 126.9780, "startLocation": "City Hall",
			"endLat": 37.5512, "endLng": 126.9882, "endLocation": "Namsan Tower",
		}, 202),
		{
			Name:  "Find: open call visible within 5km",
			Focus: "intake consumer records the call asynchronously",
			Run: func(ctx context.Context, r *Runner) Result {
				deadline := time.Now().Add(5 * time.Second)
				for {
					status, body, latency, err := r.do(ctx, http.MethodPost, "/api/ride/find", driver,
						map[string]any{"latitude": 37.5660, "longitude": 126.9775})
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if status == http.StatusOK && bytes.Contains(body, []byte(passenger)) {
						return Result{Status: "PASS", Latency: latency}
					}
					if time.Now().After(deadline) {
						return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d body=%s", status, body)}
					}
					time.Sleep(200 * time.Millisecond)
				}
			},
		},
		httpCase("Find: invalid coords -> 400", "/api/ride/find", driver, map[string]any{"latitude": 123.0, "longitude": 456.0}, 400),

		// Lifecycle
		{
			Name:  "Ride: driver accepts call",
			Focus: "ride ACCEPT, driver RESERVATION, call removed",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, latency, err := r.do(ctx, http.MethodPost, "/api/ride/accept", driver,
					map[string]any{"passengerEmail": passenger})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, body)}
				}
				var ev struct {
					RideID int64 `json:"rideId"`
				}
				_ = json.Unmarshal(body, &ev)
				r.rideID = ev.RideID
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("ride=%d", ev.RideID)}
			},
		},
		httpCase("Ride: accept same call again -> 400", "/api/ride/accept", driver, map[string]any{"passengerEmail": passenger}, 400),
		rideCase("Ride: start", "/api/ride/start/%d", driver, 200),
		rideCase("Ride: cancel after start -> 400", "/api/ride/cancel/%d", driver, 400),
		{
			Name:  "Ride: complete with fare",
			Focus: "ride COMPLETE, driver WAITING",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/ride/complete", driver,
					map[string]any{"rideId": r.rideID, "fare": 50000}, 200)
			},
		},
		{
			Name:  "Ride: complete twice -> 400",
			Focus: "COMPLETE is terminal",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/ride/complete", driver,
					map[string]any{"rideId": r.rideID, "fare": 1}, 400)
			},
		},
		{
			Name:  "Ride: lookup shows COMPLETE and fare",
			Focus: "GET /api/ride/:rideId",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, latency, err := r.do(ctx, http.MethodGet, fmt.Sprintf("/api/ride/%d", r.rideID), passenger, nil)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK || !bytes.Contains(body, []byte(`"status":"COMPLETE"`)) ||
					!bytes.Contains(body, []byte(`"fare":50000`)) {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, body)}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},
		httpCase("Ride: invalid ride id -> 400", "/api/ride/start/abc", driver, nil, 400),
		httpCase("Ride: unknown ride -> 400", "/api/ride/start/999999999", driver, nil, 400),

		// Driver availability
		httpCaseMethod("Driver: unknown status -> 400", http.MethodPatch, "/api/driver/status", driver, map[string]any{"driverStatus": "SLEEPING"}, 400),
		httpCaseMethod("Driver: go OFFLINE", http.MethodPatch, "/api/driver/status", driver, map[string]any{"driverStatus": "OFFLINE"}, 200),
		httpCaseMethod("Driver: back to WAITING", http.MethodPatch, "/api/driver/status", driver, map[string]any{"driverStatus": "WAITING"}, 200),

		// Consistency
		{
			Name:  "Consistency: driver counted one ride and is WAITING",
			Focus: "drivers.total_rides / status",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				var status string
				var total int
				err := r.db.QueryRow(ctx, `SELECT status, total_rides FROM drivers WHERE user_id = $1`,
					r.cfg.DriverUserID).Scan(&status, &total)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != "WAITING" || total < 1 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%s total_rides=%d", status, total)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("total_rides=%d", total)}
			},
		},
		{
			Name:  "Consistency: accepted call left no geo entry or detail",
			Focus: "ride:request / ride:detail:* in lockstep",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				n, err := r.redis.Exists(ctx, "ride:detail:"+passenger).Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_, perr := r.redis.ZScore(ctx, "ride:request", passenger).Result()
				if n != 0 || perr != redis.Nil {
					return Result{Status: "FAIL", Note: "open call still indexed"}
				}
				return Result{Status: "PASS"}
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: accept race on one call",
			Focus: "exactly one accept wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentAccept(ctx, r)
			},
		},
		manualCase("Saga: publish failure compensation", "stop the broker, accept a call, expect 500 with ride deleted and driver WAITING"),

		// Performance
		{
			Name:  "Perf: proximity search throughput",
			Focus: "POST /api/ride/find under load",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, "/api/ride/find", driver, map[string]any{"latitude": 37.5660, "longitude": 126.9775})
			},
		},
	}
}

func (r *Runner) do(ctx context.Context, method, path, identity string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), nil
}

func (r *Runner) expect(ctx context.Context, method, path, identity string, body any, want int) Result {
	status, out, latency, err := r.do(ctx, method, path, identity, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, out)}
	}
	return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func httpCase(name, path, identity string, body any, want int) TestCase {
	return httpCaseMethod(name, http.MethodPost, path, identity, body, want)
}

func httpCaseMethod(name, method, path, identity string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, method, path, identity, body, want)
		},
	}
}

// rideCase targets the ride created by the accept case.
func rideCase(name, pathFmt, identity string, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == 0 {
				return Result{Status: "SKIP", Note: "no ride accepted"}
			}
			return r.expect(ctx, http.MethodPost, fmt.Sprintf(pathFmt, r.rideID), identity, nil, want)
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

// concurrentAccept seeds one open call straight into Redis and fires concurrent accepts at it.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: "SKIP", Note: "redis not configured"}
	}
	calls := call.NewService(call.NewStore(r.redis), 5, slog.New(slog.NewTextHandler(io.Discard, nil)))
	seed := call.Request{
		PassengerID: r.cfg.PassengerEmail, StartLat: 37.5665, StartLng: 126.9780, StartLocation: "City Hall",
		EndLat: 37.5512, EndLng: 126.9882, EndLocation: "Namsan Tower",
	}
	if err := calls.Record(ctx, seed); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if open, err := calls.FindNearby(ctx, types.Point{Lat: seed.StartLat, Lng: seed.StartLng}); err != nil || len(open) == 0 {
		return Result{Status: "FAIL", Note: "seeded call not searchable"}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		succ   int
		rideID int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, body, _, err := r.do(ctx, http.MethodPost, "/api/ride/accept", r.cfg.DriverEmail,
				map[string]any{"passengerEmail": r.cfg.PassengerEmail})
			if err != nil || status != http.StatusOK {
				return
			}
			var ev struct {
				RideID int64 `json:"rideId"`
			}
			_ = json.Unmarshal(body, &ev)
			mu.Lock()
			succ++
			rideID = ev.RideID
			mu.Unlock()
		}()
	}
	wg.Wait()

	if rideID != 0 {
		_, _, _, _ = r.do(ctx, http.MethodPost, fmt.Sprintf("/api/ride/cancel/%d", rideID), r.cfg.DriverEmail, nil)
	}
	if succ != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("success=%d of %d", succ, r.cfg.Concurrency)}
}

func perfLoad(ctx context.Context, r *Runner, path, identity string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				status, _, _, err := r.do(ctx, http.MethodPost, path, identity, payload)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
