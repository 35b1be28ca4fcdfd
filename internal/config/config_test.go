package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Server(t *testing.T) {
	t.Parallel()

	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Server.Listen != DefaultListen {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.Server.MaxEvents != DefaultMaxEvents || cfg.Server.DefaultLimit != DefaultLimit {
		t.Fatalf("max_events=%d default_limit=%d", cfg.Server.MaxEvents, cfg.Server.DefaultLimit)
	}
	if cfg.Server.AllowOrigin != "*" || cfg.Server.PermissionsPolicy == "" {
		t.Fatalf("headers defaults not set: %+v", cfg.Server)
	}
	if cfg.Log.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("max_size_mb=%d", cfg.Log.MaxSizeMB)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestApplyDefaults_SmallCapacityCapsLimit(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{MaxEvents: 10}}
	ApplyDefaults(&cfg)
	if cfg.Server.DefaultLimit != 10 {
		t.Fatalf("default_limit=%d", cfg.Server.DefaultLimit)
	}
}

func TestValidate_RejectsBadCapacity(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{MaxEvents: -5}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}

	cfg = Config{Server: ServerConfig{Listen: ":5000", MaxEvents: 5, DefaultLimit: 6, MaxBodyBytes: 1024}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected default_limit error")
	}
}

func TestApplyDefaults_CapsExplicitLimit(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{MaxEvents: 5, DefaultLimit: 6}}
	ApplyDefaults(&cfg)
	if cfg.Server.DefaultLimit != 5 {
		t.Fatalf("default_limit=%d", cfg.Server.DefaultLimit)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_StaticDirMustExist(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{StaticDir: filepath.Join(t.TempDir(), "missing")}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sensord.yaml")
	data := `
server:
  listen: 127.0.0.1:8080
  max_events: 200
  stun_servers:
    - stun.l.google.com:19302
  stun_timeout: 1500ms
log:
  file: /tmp/sensord.log
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8080" || cfg.Server.MaxEvents != 200 {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Server.DefaultLimit != DefaultLimit {
		t.Fatalf("default_limit=%d", cfg.Server.DefaultLimit)
	}
	if cfg.Server.STUNTimeout != 1500*time.Millisecond {
		t.Fatalf("stun_timeout=%s", cfg.Server.STUNTimeout)
	}
	if len(cfg.Server.STUNServers) != 1 || cfg.Log.File != "/tmp/sensord.log" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestSave_Writes0600(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "sensord.yaml")
	if err := Save(path, Config{Server: ServerConfig{MaxEvents: 42}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.MaxEvents != 42 {
		t.Fatalf("max_events=%d", cfg.Server.MaxEvents)
	}
}

func TestReadEnvFile(t *testing.T) {
	t.Parallel()

	env, err := ReadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil || len(env) != 0 {
		t.Fatalf("missing file: env=%v err=%v", env, err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SENSORD_MAX_EVENTS=25\nSENSORD_STUN_SERVERS=a:1, b:2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	env, err = ReadEnvFile(path)
	if err != nil {
		t.Fatalf("ReadEnvFile: %v", err)
	}
	if env[EnvMaxEvents] != "25" {
		t.Fatalf("env=%v", env)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvListen:      ":9000",
		EnvMaxEvents:   "25",
		EnvSTUNServers: "a:1, ,b:2",
		EnvLogFile:     "out.log",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var cfg Config
	if err := ApplyEnv(&cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.Listen != ":9000" || cfg.Server.MaxEvents != 25 || cfg.Log.File != "out.log" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.Server.STUNServers) != 2 || cfg.Server.STUNServers[1] != "b:2" {
		t.Fatalf("stun=%v", cfg.Server.STUNServers)
	}

	env[EnvMaxEvents] = "lots"
	if err := ApplyEnv(&cfg, lookup); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestResolve_SmallCapacityAfterLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sensord.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen: 127.0.0.1:8080\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	env := map[string]string{EnvMaxEvents: "10"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := Resolve(path, lookup, Overrides{})
	if err != nil {
		t.Fatalf("Resolve env max_events=10: %v", err)
	}
	if cfg.Server.MaxEvents != 10 || cfg.Server.DefaultLimit != 10 {
		t.Fatalf("max_events=%d default_limit=%d", cfg.Server.MaxEvents, cfg.Server.DefaultLimit)
	}

	cfg, err = Resolve(path, lookup, Overrides{MaxEvents: 3, STUNServers: []string{"stun.example.org:3478"}})
	if err != nil {
		t.Fatalf("Resolve flag max_events=3: %v", err)
	}
	if cfg.Server.MaxEvents != 3 || cfg.Server.DefaultLimit != 3 || cfg.Server.Listen != "127.0.0.1:8080" {
		t.Fatalf("cfg=%+v", cfg.Server)
	}
	if len(cfg.Server.STUNServers) != 1 {
		t.Fatalf("stun=%v", cfg.Server.STUNServers)
	}
}

func TestResolve_SavedConfigAcceptsLowerCapacity(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sensord.yaml")
	if err := Save(path, Config{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg, err := Resolve(path, nil, Overrides{MaxEvents: 10})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Server.DefaultLimit != 10 {
		t.Fatalf("default_limit=%d", cfg.Server.DefaultLimit)
	}
}

func TestResolve_RejectsNegativeCapacity(t *testing.T) {
	t.Parallel()

	if _, err := Resolve("", nil, Overrides{MaxEvents: -1}); err == nil {
		t.Fatalf("expected error")
	}
}
