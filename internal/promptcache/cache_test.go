package promptcache

import (
	"fmt"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	inputs := []string{"", "a", "Summarize this", "日本語テキスト", "emoji 😀 input"}
	for _, in := range inputs {
		if Key(in) != Key(in) {
			t.Errorf("Key(%q) not deterministic", in)
		}
	}
}

func TestKey_KnownValues(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		// djb2 seed 5381 is 0x1505.
		{"", "1505"},
		// 5381*33 + 'a' = 177670 = 0x2b606.
		{"a", "2b606"},
	}
	for _, tt := range tests {
		if got := Key(tt.in); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey_Distribution(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 1000; i++ {
		in := fmt.Sprintf("prompt variant %d", i)
		k := Key(in)
		if prev, ok := seen[k]; ok {
			t.Fatalf("collision: Key(%q) == Key(%q) == %q", in, prev, k)
		}
		seen[k] = in
	}
}

func TestKey_SurrogatePairsContribute(t *testing.T) {
	// U+1F600 encodes as the UTF-16 pair D83D DE00; the hash must see both
	// halves. djb2 over {0xD83D, 0xDE00} is 0x762822.
	if got := Key("😀"); got != "762822" {
		t.Errorf("Key(😀) = %q, want 762822", got)
	}
	// An unpaired high half (raw bytes, not valid UTF-8) decodes to
	// replacement characters and must not collide with the full pair.
	if Key("\xed\xa0\xbd") == Key("😀") {
		t.Error("expected a lone high half to hash differently from the full pair")
	}
}

func TestCache_PutAndGet(t *testing.T) {
	c := New(10)
	c.Put("k1", Result{Text: "a"})

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Text != "a" {
		t.Errorf("Text = %q, want a", got.Text)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New(10)
	if _, ok := c.Get("missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestCache_CachesErrors(t *testing.T) {
	c := New(10)
	c.Put("k1", Result{ErrMessage: "upstream said no"})

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ErrMessage != "upstream said no" {
		t.Errorf("ErrMessage = %q", got.ErrMessage)
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	c := New(100)
	for i := 0; i < 101; i++ {
		c.Put(fmt.Sprintf("k%d", i), Result{Text: fmt.Sprintf("v%d", i)})
	}

	if c.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("expected oldest entry k0 to be evicted")
	}
	for i := 1; i <= 100; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("expected k%d to be present", i)
		}
	}
}

func TestCache_GetDoesNotRefreshOrder(t *testing.T) {
	c := New(2)
	c.Put("a", Result{Text: "a"})
	c.Put("b", Result{Text: "b"})

	// A hit on "a" must not protect it from FIFO eviction.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	c.Put("c", Result{Text: "c"})

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted despite recent hit")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to survive")
	}
}

func TestCache_OverwriteKeepsInsertionOrder(t *testing.T) {
	c := New(2)
	c.Put("a", Result{Text: "a1"})
	c.Put("b", Result{Text: "b"})
	c.Put("a", Result{Text: "a2"})

	got, _ := c.Get("a")
	if got.Text != "a2" {
		t.Fatalf("overwrite not applied, got %q", got.Text)
	}

	// "a" is still the oldest insert; the next new key evicts it.
	c.Put("c", Result{Text: "c"})
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted as oldest insert")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to survive")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(10)
	c.Put("a", Result{Text: "a"})
	c.Put("b", Result{Text: "b"})
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestCache_EndToEnd(t *testing.T) {
	c := New(100)
	c.Put("k1", Result{Text: "a"})

	got, ok := c.Get("k1")
	if !ok || got.Text != "a" {
		t.Fatalf("Get(k1) = %+v, %v", got, ok)
	}

	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("other%d", i), Result{Text: "x"})
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("expected k1 to be evicted after 100 further inserts")
	}
}
