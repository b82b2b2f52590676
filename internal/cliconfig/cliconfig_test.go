package cliconfig

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Contexts) != 0 || f.Current != "" {
		t.Fatalf("expected an empty File, got %+v", f)
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	f := &File{Current: "prod"}
	f.Upsert(Context{Name: "prod", Address: "https://control.example.test", Token: "secret"})

	if err := Save(path, f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Current != "prod" {
		t.Fatalf("Current = %q, want prod", loaded.Current)
	}

	ctx, err := loaded.CurrentContext()
	if err != nil {
		t.Fatalf("CurrentContext: %v", err)
	}
	if ctx.Address != "https://control.example.test" || ctx.Token != "secret" {
		t.Fatalf("got %+v, want matching address/token", ctx)
	}
}

func TestUpsert_ReplacesExistingByName(t *testing.T) {
	f := &File{}
	f.Upsert(Context{Name: "prod", Address: "https://old.example.test"})
	f.Upsert(Context{Name: "prod", Address: "https://new.example.test"})

	if len(f.Contexts) != 1 {
		t.Fatalf("expected a single context after upsert-replace, got %d", len(f.Contexts))
	}
	if f.Contexts[0].Address != "https://new.example.test" {
		t.Fatalf("Address = %q, want the replaced value", f.Contexts[0].Address)
	}
}

func TestDelete_ClearsCurrentWhenItPointsThere(t *testing.T) {
	f := &File{Current: "prod"}
	f.Upsert(Context{Name: "prod", Address: "https://example.test"})

	if err := f.Delete("prod"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.Current != "" {
		t.Fatalf("Current = %q, want cleared after deleting it", f.Current)
	}
	if len(f.Contexts) != 0 {
		t.Fatalf("expected no contexts left, got %+v", f.Contexts)
	}
}

func TestDelete_UnknownNameIsError(t *testing.T) {
	f := &File{}
	if err := f.Delete("missing"); err == nil {
		t.Fatal("expected an error deleting an unknown context")
	}
}

func TestFind_UnknownNameIsError(t *testing.T) {
	f := &File{}
	if _, err := f.Find("missing"); err == nil {
		t.Fatal("expected an error finding an unknown context")
	}
}

func TestCurrentContext_UnsetIsError(t *testing.T) {
	f := &File{}
	if _, err := f.CurrentContext(); err == nil {
		t.Fatal("expected an error when no current context is set")
	}
}
