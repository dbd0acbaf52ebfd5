package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/config"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Compile.Workers != 2 {
		t.Errorf("Compile.Workers = %d, want 2", got.Compile.Workers)
	}
	if !filepath.IsAbs(h.Path()) {
		t.Errorf("Path() = %s, want absolute path", h.Path())
	}
}

func TestHolder_NewHolderInvalid(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: loud\n")

	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Fatal("NewHolder should fail for invalid config")
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
compile:
  workers: 12
cache:
  ttl: 1m
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Compile.Workers != 12 {
		t.Errorf("reloaded Compile.Workers = %d, want 12", cfg.Compile.Workers)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("reloaded Cache.TTL = %v, want 1m", cfg.Cache.TTL)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var receivedCfg *config.Config
	var results []error

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		receivedCfg = cfg
		mu.Unlock()
	})
	h.OnReloadResult(func(err error, at time.Time) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if receivedCfg == nil {
		t.Fatal("OnChange callback was not called")
	}
	if receivedCfg.Logging.Level != "debug" {
		t.Errorf("callback received level = %s, want debug", receivedCfg.Logging.Level)
	}
	if len(results) != 1 || results[0] != nil {
		t.Errorf("reload results = %v, want one nil", results)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var changed bool
	var failed error
	h.OnChange(func(*config.Config) { changed = true })
	h.OnReloadResult(func(err error, _ time.Time) { failed = err })

	if err := os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if changed {
		t.Error("OnChange should not run for a failed reload")
	}
	if failed == nil {
		t.Error("reload result should carry the error")
	}

	// Old config should still be in place
	cfg := h.Get()
	if cfg.Compile.Workers != 2 {
		t.Errorf("should keep old config, got Compile.Workers = %d", cfg.Compile.Workers)
	}
}

func TestHolder_Static(t *testing.T) {
	h := config.NewStaticHolder(config.Default(), zerolog.Nop())
	defer h.Stop()

	if h.Get().Server.Port != 8480 {
		t.Errorf("Server.Port = %d, want 8480", h.Get().Server.Port)
	}
	if h.Path() != "" {
		t.Errorf("Path() = %q, want empty", h.Path())
	}
	if err := h.Reload(); err == nil {
		t.Error("Reload should fail without a file")
	}
	if err := h.WatchFile(); err == nil {
		t.Error("WatchFile should fail without a file")
	}
}

func TestHolder_StopTwice(t *testing.T) {
	h := config.NewStaticHolder(config.Default(), zerolog.Nop())
	h.Stop()
	h.Stop()
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan *config.Config, 8)
	h.OnChange(func(cfg *config.Config) {
		changed <- cfg
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("compile:\n  workers: 7\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Compile.Workers == 7 {
				return
			}
		case <-deadline:
			t.Fatalf("file watcher did not reload, Compile.Workers = %d", h.Get().Compile.Workers)
		}
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	for _, e := range []string{"logging.level", "compile.workers", "cache.ttl"} {
		if !slices.Contains(fields, e) {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()
	for _, e := range []string{"server.host", "server.port", "database.dsn", "devices.paths"} {
		if !slices.Contains(fields, e) {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}

	for _, f := range config.ReloadableFields() {
		if slices.Contains(fields, f) {
			t.Errorf("%s is listed as both reloadable and non-reloadable", f)
		}
	}
}

// Helper functions

func validConfig() string {
	return `
database:
  driver: "memory"

compile:
  workers: 2
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nodecfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
