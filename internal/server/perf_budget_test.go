package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestPerformanceBudgets(t *testing.T) {
	if strings.TrimSpace(os.Getenv("IMAGEHOSTER_PERF_ENFORCE")) != "1" {
		t.Skip("set IMAGEHOSTER_PERF_ENFORCE=1 to run performance budget checks")
	}

	t.Run("cached_variant", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.fetcher.responses[originURL] = fakeResponse{status: http.StatusOK, body: pngBytes(t, 512, 512)}
		if w := env.get("/128x128/" + originURL); w.Code != http.StatusOK {
			t.Fatalf("warm cache: %d", w.Code)
		}

		rounds := envInt("IMAGEHOSTER_PERF_CACHED_ROUNDS", 500)
		maxPerOp := envDuration("IMAGEHOSTER_PERF_CACHED_MAX_PER_OP", 2*time.Millisecond)
		start := time.Now()
		for i := 0; i < rounds; i++ {
			if w := env.get("/128x128/" + originURL); w.Code != http.StatusOK {
				t.Fatalf("cached proxy: %d", w.Code)
			}
		}
		assertBudget(t, "cached_variant", time.Since(start), rounds, maxPerOp)
	})

	t.Run("upload", func(t *testing.T) {
		env := newTestEnv(t, nil)
		data := pngBytes(t, 128, 128)
		sig := signUpload(env.key, data)

		rounds := envInt("IMAGEHOSTER_PERF_UPLOAD_ROUNDS", 200)
		maxPerOp := envDuration("IMAGEHOSTER_PERF_UPLOAD_MAX_PER_OP", 5*time.Millisecond)
		start := time.Now()
		for i := 0; i < rounds; i++ {
			if w := env.do(uploadRequest(t, "alice", sig, "cat.png", data)); w.Code != http.StatusOK {
				t.Fatalf("upload: %d", w.Code)
			}
		}
		assertBudget(t, "upload", time.Since(start), rounds, maxPerOp)
	})
}

func assertBudget(t *testing.T, name string, elapsed time.Duration, rounds int, maxPerOp time.Duration) {
	t.Helper()
	perOp := elapsed / time.Duration(rounds)
	t.Logf("%s: %d rounds in %s (%s/op, budget %s)", name, rounds, elapsed, perOp, maxPerOp)
	if perOp > maxPerOp {
		t.Fatalf("%s exceeded budget: %s/op > %s/op", name, perOp, maxPerOp)
	}
}

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
