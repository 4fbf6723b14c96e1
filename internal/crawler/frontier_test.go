package crawler

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

func entry(key string, depth int) types.FrontierEntry {
	u, _ := url.Parse(key)
	return types.FrontierEntry{Key: key, Raw: u, Depth: depth}
}

func TestFrontierFIFO(t *testing.T) {
	f := NewFrontier(10, 3)
	keys := []string{"http://a.test/1", "http://a.test/2", "http://a.test/3"}
	for _, k := range keys {
		if !f.Push(entry(k, 0)) {
			t.Fatalf("push %q rejected", k)
		}
	}
	for _, want := range keys {
		got, ok := f.Pop()
		if !ok {
			t.Fatalf("pop: frontier empty, want %q", want)
		}
		if got.Key != want {
			t.Errorf("pop = %q, want %q", got.Key, want)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Error("pop on drained frontier reported ok")
	}
}

func TestFrontierRejectsDuplicates(t *testing.T) {
	f := NewFrontier(10, 3)
	if !f.Push(entry("http://a.test/", 0)) {
		t.Fatal("first push rejected")
	}
	if f.Push(entry("http://a.test/", 1)) {
		t.Error("duplicate key accepted")
	}
	// a popped key stays seen for the rest of the run
	f.Pop()
	if f.Push(entry("http://a.test/", 2)) {
		t.Error("key re-accepted after pop")
	}
	if got := f.Accepted(); got != 1 {
		t.Errorf("Accepted = %d, want 1", got)
	}
}

func TestFrontierDepthCap(t *testing.T) {
	f := NewFrontier(10, 2)
	if !f.Push(entry("http://a.test/ok", 2)) {
		t.Error("entry at max depth rejected")
	}
	if f.Push(entry("http://a.test/deep", 3)) {
		t.Error("entry beyond max depth accepted")
	}
}

func TestFrontierPageBudget(t *testing.T) {
	f := NewFrontier(3, 5)
	for i := 0; i < 3; i++ {
		if !f.Push(entry(fmt.Sprintf("http://a.test/%d", i), 0)) {
			t.Fatalf("push %d rejected within budget", i)
		}
	}
	if f.Push(entry("http://a.test/over", 0)) {
		t.Error("push accepted beyond page budget")
	}
	if got := f.Accepted(); got != 3 {
		t.Errorf("Accepted = %d, want 3", got)
	}
	if got := f.Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
}
