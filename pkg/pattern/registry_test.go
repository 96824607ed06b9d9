package pattern

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testRuleFile = `name: "Test Rules"
format_id: "test-rules"
version: "1.0.0"
jurisdiction: "XX"
rules:
  - class: "artigo"
    pattern: '^Article\s+(\d+)'
    number: "alphanumeric"
`

func writeRuleFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry(nil)
	if registry == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", registry.Count())
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(nil)

	if err := registry.Register(MustDefault()); err != nil {
		t.Errorf("Register() error = %v", err)
	}
	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", registry.Count())
	}

	if err := registry.Register(nil); err == nil {
		t.Error("Register(nil) should return error")
	}

	// Same format ID and version
	if err := registry.Register(MustDefault()); err == nil {
		t.Error("Register() duplicate should return error")
	}

	rf, err := ParseRuleFile(DefaultRuleFile())
	if err != nil {
		t.Fatalf("ParseRuleFile() error = %v", err)
	}
	rf.Version = "2.0.0"
	next, err := Compile(rf)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := registry.Register(next); err != nil {
		t.Errorf("Register() new version error = %v", err)
	}

	got, ok := registry.Get(DefaultFormatID)
	if !ok {
		t.Fatal("Get() should find the default format")
	}
	if got.Version() != "2.0.0" {
		t.Errorf("Version() = %q, want 2.0.0", got.Version())
	}
}

func TestRegistryLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "test.yaml", testRuleFile)
	writeRuleFile(t, dir, "default.yml", string(DefaultRuleFile()))
	writeRuleFile(t, dir, "notes.txt", "not a rule file")

	registry, err := NewRegistryWithDirectory(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistryWithDirectory() error = %v", err)
	}
	if registry.Count() != 2 {
		t.Errorf("Count() = %d, want 2", registry.Count())
	}

	list := registry.List()
	if len(list) != 2 || list[0].FormatID() != DefaultFormatID || list[1].FormatID() != "test-rules" {
		t.Errorf("List() not ordered by format ID")
	}

	rs, ok := registry.Get("test-rules")
	if !ok {
		t.Fatal("Get(test-rules) not found")
	}
	if rs.Jurisdiction() != "XX" || rs.Len() != 1 {
		t.Errorf("loaded rule set = %s/%d, want XX/1", rs.Jurisdiction(), rs.Len())
	}
}

func TestRegistryLoadDirectoryMissing(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("LoadDirectory() on missing dir error = %v, want nil", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", registry.Count())
	}
}

func TestRegistryLoadDirectoryReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "good.yaml", testRuleFile)
	writeRuleFile(t, dir, "bad.yaml", "name: [unclosed")

	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(dir); err == nil {
		t.Error("LoadDirectory() should report the bad file")
	}
	if _, ok := registry.Get("test-rules"); !ok {
		t.Error("good rule file should still be loaded")
	}
}

func TestRegistryWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watch test in short mode")
	}

	dir := t.TempDir()
	path := writeRuleFile(t, dir, "test.yaml", testRuleFile)

	registry, err := NewRegistryWithDirectory(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistryWithDirectory() error = %v", err)
	}

	changed := make(chan *RuleSet, 4)
	registry.SetOnChange(func(event string, rs *RuleSet) {
		if rs != nil {
			changed <- rs
		}
	})

	if err := registry.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer registry.StopWatch()

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	updated := `name: "Updated Via Watch"
format_id: "test-rules"
version: "1.1.0"
rules:
  - class: "artigo"
    pattern: '^Art\s+(\d+)'
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("writing updated rule file: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case rs := <-changed:
			if rs.Name() == "Updated Via Watch" {
				got, _ := registry.Get("test-rules")
				if got.Version() != "1.1.0" {
					t.Errorf("Version() = %q, want 1.1.0", got.Version())
				}
				return
			}
		case <-deadline:
			t.Log("Watch() did not detect file change within timeout (may be CI environment)")
			return
		}
	}
}

func TestRegistryWatchRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watch test in short mode")
	}

	dir := t.TempDir()
	path := writeRuleFile(t, dir, "test.yaml", testRuleFile)
	registry, err := NewRegistryWithDirectory(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistryWithDirectory() error = %v", err)
	}

	events := make(chan string, 4)
	registry.SetOnChange(func(event string, rs *RuleSet) { events <- event })
	if err := registry.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer registry.StopWatch()
	if err := registry.Watch(); err == nil {
		t.Error("second Watch() should fail")
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing rule file: %v", err)
	}

	select {
	case event := <-events:
		if event != "remove" {
			t.Errorf("event = %q, want remove", event)
		}
		if _, ok := registry.Get("test-rules"); ok {
			t.Error("removed rule set is still registered")
		}
	case <-time.After(2 * time.Second):
		t.Log("Watch() did not detect removal within timeout (may be CI environment)")
	}
}

func TestRegistryStopWatchIdempotent(t *testing.T) {
	registry, err := NewRegistryWithDirectory(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRegistryWithDirectory() error = %v", err)
	}
	registry.StopWatch()
	if err := registry.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	registry.StopWatch()
	registry.StopWatch()
	if err := registry.Watch(); err != nil {
		t.Errorf("Watch() after StopWatch() error = %v", err)
	}
	registry.StopWatch()
}

func TestRegistryWatchNoDirectory(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.Watch(); err == nil {
		t.Error("Watch() without directory should return error")
	}
}
