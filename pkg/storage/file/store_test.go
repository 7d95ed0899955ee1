package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendAndRead(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	items, err := store.Read(ctx, "orders.json")
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("missing file should read as empty ledger, got %d items", len(items))
	}

	if err := store.Append(ctx, "orders.json", json.RawMessage(`{"id":1}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "orders.json", json.RawMessage(`{"id":2}`)); err != nil {
		t.Fatalf("append: %v", err)
	}

	items, err = store.Read(ctx, "orders.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if string(items[0]) != `{"id":1}` {
		t.Fatalf("order not preserved: %s", items[0])
	}
}

func TestWriteReplacesContents(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Append(ctx, "orders.json", json.RawMessage(`{"id":1}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Write(ctx, "orders.json", []json.RawMessage{json.RawMessage(`{"id":9}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	items, err := store.Read(ctx, "orders.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 1 || string(items[0]) != `{"id":9}` {
		t.Fatalf("write did not replace contents: %v", items)
	}
}

func TestExists(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	ok, err := store.Exists(ctx, "orders.json")
	if err != nil || ok {
		t.Fatalf("expected missing file, got ok=%v err=%v", ok, err)
	}
	if err := store.Append(ctx, "orders.json", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	ok, err = store.Exists(ctx, "orders.json")
	if err != nil || !ok {
		t.Fatalf("expected file present, got ok=%v err=%v", ok, err)
	}
}

func TestPathEscapesAreStripped(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Append(ctx, "../escape.json", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.json")); err != nil {
		t.Fatalf("file should land inside the ledger dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Fatal("file escaped the ledger dir")
	}
}

func TestConcurrentAppends(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(ctx, "orders.json", json.RawMessage(`{"n":1}`)); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	items, err := store.Read(ctx, "orders.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 20 {
		t.Fatalf("expected 20 items after concurrent appends, got %d", len(items))
	}
}

func TestPing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
