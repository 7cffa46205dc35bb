package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *ProgressStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	n := 0
	return NewProgressStore(db, 6, func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	})
}

func testKV(t *testing.T, kv KV) {
	t.Helper()

	if _, ok, err := kv.Get("missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	for _, k := range []string{"cp:research:b", "cp:research:a", "cp:analytics:x"} {
		if err := kv.Set(k, "v-"+k); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}
	if err := kv.Set("cp:research:a", "updated"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	v, ok, err := kv.Get("cp:research:a")
	if err != nil || !ok || v != "updated" {
		t.Errorf("Get returned %q, %v, %v", v, ok, err)
	}

	keys, err := kv.Keys("cp:research:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "cp:research:a" || keys[1] != "cp:research:b" {
		t.Errorf("unexpected keys: %v", keys)
	}

	if err := kv.Remove("cp:research:a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := kv.Get("cp:research:a"); ok {
		t.Error("expected key to be removed")
	}
}

func TestMemoryKV(t *testing.T) {
	testKV(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	p := openTestDB(t)
	testKV(t, NewSQLiteKV(p.DB))
}

func TestSQLiteKV_PrefixWithWildcards(t *testing.T) {
	p := openTestDB(t)
	kv := NewSQLiteKV(p.DB)
	_ = kv.Set("a_b:1", "x")
	_ = kv.Set("axb:1", "y")

	keys, err := kv.Keys("a_b:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "a_b:1" {
		t.Errorf("underscore must not act as a wildcard, got %v", keys)
	}
}

func TestSQLiteKV_NonASCIIPrefix(t *testing.T) {
	p := openTestDB(t)
	kv := NewSQLiteKV(p.DB)
	_ = kv.Set("café:1", "x")
	_ = kv.Set("café:2", "y")
	_ = kv.Set("cafe:1", "z")

	keys, err := kv.Keys("café:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "café:1" || keys[1] != "café:2" {
		t.Errorf("expected both café keys, got %v", keys)
	}
}

func TestProgressStore_Lifecycle(t *testing.T) {
	p := openTestDB(t)

	if _, err := p.Get("u1"); !errors.Is(err, ErrNoProgress) {
		t.Fatalf("expected ErrNoProgress, got %v", err)
	}

	prog, err := p.Start("u1")
	if err != nil {
		t.Fatal(err)
	}
	if prog.CurrentStep != 1 || prog.SessionID != "session-1" {
		t.Errorf("unexpected fresh progress: %+v", prog)
	}

	if err := p.CompleteStep("u1", 1, `{"api_keys":{"openai":"x"}}`); err != nil {
		t.Fatal(err)
	}
	step, err := p.CurrentStep("u1")
	if err != nil || step != 2 {
		t.Errorf("expected current step 2, got %d (%v)", step, err)
	}

	// Re-completing an earlier step never moves the user backwards.
	if err := p.CompleteStep("u1", 2, `{}`); err != nil {
		t.Fatal(err)
	}
	if err := p.CompleteStep("u1", 1, `{"api_keys":{"openai":"y"}}`); err != nil {
		t.Fatal(err)
	}
	prog, err = p.Get("u1")
	if err != nil {
		t.Fatal(err)
	}
	if prog.CurrentStep != 3 {
		t.Errorf("expected current step 3, got %d", prog.CurrentStep)
	}
	if len(prog.Steps) != 2 || prog.Steps[0].Data != `{"api_keys":{"openai":"y"}}` {
		t.Errorf("unexpected steps: %+v", prog.Steps)
	}
	if prog.SessionID != "session-1" {
		t.Errorf("session must survive restarts, got %s", prog.SessionID)
	}
}

func TestProgressStore_CompleteFinalStep(t *testing.T) {
	p := openTestDB(t)
	for i := 1; i <= 6; i++ {
		if err := p.CompleteStep("u1", i, `{}`); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	prog, err := p.Get("u1")
	if err != nil {
		t.Fatal(err)
	}
	if prog.CurrentStep != 6 || prog.CompletedAt == nil {
		t.Errorf("expected completed onboarding at step 6, got %+v", prog)
	}

	if err := p.CompleteStep("u1", 7, `{}`); err == nil {
		t.Error("expected out of range error")
	}
}

func TestProgressStore_Reset(t *testing.T) {
	p := openTestDB(t)
	_ = p.CompleteStep("u1", 1, `{}`)
	if err := p.Reset("u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CurrentStep("u1"); !errors.Is(err, ErrNoProgress) {
		t.Errorf("expected ErrNoProgress after reset, got %v", err)
	}
}
