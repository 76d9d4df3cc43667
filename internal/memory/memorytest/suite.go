// Package memorytest provides a conformance suite for memory.HistoryStore
// implementations.
package memorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/rolechat/internal/memory"
	"github.com/flemzord/rolechat/pkg/message"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Messages returns n alternating user/model messages one second apart.
func Messages(n int) []message.Message {
	out := make([]message.Message, n)
	for i := range out {
		ts := base.Add(time.Duration(i) * time.Second)
		text := fmt.Sprintf("msg-%d", i)
		if i%2 == 0 {
			out[i] = message.NewUser(text, ts)
		} else {
			out[i] = message.NewModel(text, ts)
		}
	}
	return out
}

// RunHistoryStoreTests exercises the HistoryStore contract against stores
// created by newStore.
func RunHistoryStoreTests(t *testing.T, newStore func(t *testing.T) memory.HistoryStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("append and load", func(t *testing.T) {
		store := newStore(t)
		msgs := Messages(3)
		if err := store.Append(ctx, "aria", msgs[0]); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := store.Append(ctx, "aria", msgs[1:]...); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := store.Load(ctx, "aria")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		assertEqual(t, got, msgs)
	})

	t.Run("unknown conversation is empty", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Load(ctx, "nobody")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Load = %d messages, want 0", len(got))
		}
		n, err := store.Len(ctx, "nobody")
		if err != nil || n != 0 {
			t.Errorf("Len = %d, %v; want 0, nil", n, err)
		}
	})

	t.Run("memory flag round trips", func(t *testing.T) {
		store := newStore(t)
		msgs := []message.Message{message.NewMemory("they met", base), message.NewUser("hi", base.Add(time.Second))}
		if err := store.Replace(ctx, "aria", msgs); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		got, err := store.Load(ctx, "aria")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		assertEqual(t, got, msgs)
	})

	t.Run("replace substitutes everything", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "aria", Messages(5)...); err != nil {
			t.Fatalf("Append: %v", err)
		}
		next := Messages(2)
		if err := store.Replace(ctx, "aria", next); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		got, err := store.Load(ctx, "aria")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		assertEqual(t, got, next)

		if err := store.Replace(ctx, "aria", nil); err != nil {
			t.Fatalf("Replace(nil): %v", err)
		}
		if n, _ := store.Len(ctx, "aria"); n != 0 {
			t.Errorf("Len after empty Replace = %d", n)
		}
	})

	t.Run("replace isolates conversations", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "aria", Messages(2)...); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := store.Append(ctx, "bram", Messages(3)...); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := store.Replace(ctx, "aria", nil); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if n, _ := store.Len(ctx, "aria"); n != 0 {
			t.Errorf("Len(aria) = %d, want 0", n)
		}
		if n, _ := store.Len(ctx, "bram"); n != 3 {
			t.Errorf("Len(bram) = %d, want 3", n)
		}
	})

	t.Run("load returns a copy", func(t *testing.T) {
		store := newStore(t)
		if err := store.Append(ctx, "aria", Messages(2)...); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, _ := store.Load(ctx, "aria")
		got[0].Text = "mutated"
		again, _ := store.Load(ctx, "aria")
		if again[0].Text != "msg-0" {
			t.Errorf("stored message mutated through Load result: %q", again[0].Text)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		store := newStore(t)
		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Append(ctx, "aria", message.NewUser(fmt.Sprintf("u%d", i), base)); err != nil {
					t.Errorf("Append: %v", err)
				}
			}()
		}
		wg.Wait()
		if n, _ := store.Len(ctx, "aria"); n != 10 {
			t.Errorf("Len = %d, want 10", n)
		}
	})
}

func assertEqual(t *testing.T, got, want []message.Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Role != w.Role || g.Text != w.Text || g.IsMemory != w.IsMemory || !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("message[%d] = %+v, want %+v", i, g, w)
		}
	}
}
