package verify

import "testing"

func TestNewEnvFactoryDefaultsToRegex(t *testing.T) {
	t.Setenv("GZ_VERIFY_ENGINE", "")
	f := NewEnvFactory()
	if f.engine != "regex" {
		t.Fatalf("engine = %q, want %q", f.engine, "regex")
	}
}

func TestNewEnvFactoryReadsEnvCaseInsensitively(t *testing.T) {
	t.Setenv("GZ_VERIFY_ENGINE", "REGEX")
	f := NewEnvFactory()
	if f.engine != "regex" {
		t.Fatalf("engine = %q, want %q", f.engine, "regex")
	}
}

func TestEnvFactoryCompileMatchesCompileWildcard(t *testing.T) {
	f := NewEnvFactory()
	eng, err := f.Compile("HELLO*WORLD")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !eng.IsMatch("hello big world") {
		t.Error("expected compiled engine to match")
	}
}

func TestEnvFactoryUnknownEngineFallsBackToRegex(t *testing.T) {
	f := &EnvFactory{engine: "nonexistent"}
	eng, err := f.Compile("a*b")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !eng.IsMatch("axxxb") {
		t.Error("expected fallback regex engine to match")
	}
}
