package exclude

import (
	"sync"
	"testing"
)

func TestIsExcluded(t *testing.T) {
	set := New("Documents/Archive", "Photos\\2019")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"exact match", "Documents/Archive", true},
		{"nested path", "Documents/Archive/old/report.pdf", true},
		{"backslash input", "Documents\\Archive\\old.txt", true},
		{"normalized prefix matches forward slash", "Photos/2019/summer.jpg", true},
		{"sibling with shared characters", "Documents/Archives", false},
		{"parent of excluded", "Documents", false},
		{"unrelated path", "Music/song.mp3", false},
		{"empty path", "", false},
		{"leading slash", "/Documents/Archive/file.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.IsExcluded(tt.path); got != tt.want {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAddNormalizesAndDeduplicates(t *testing.T) {
	set := New()
	set.Add("/Documents/Archive/")
	set.Add("Documents\\Archive")
	set.Add("Documents/Archive")

	entries := set.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %v, want single entry", entries)
	}
	if entries[0] != "Documents/Archive" {
		t.Errorf("Entry = %q, want Documents/Archive", entries[0])
	}
}

func TestAddIgnoresEmpty(t *testing.T) {
	set := New()
	set.Add("")
	set.Add("/")

	if len(set.Entries()) != 0 {
		t.Errorf("Entries() = %v, want empty", set.Entries())
	}
}

func TestRemove(t *testing.T) {
	set := New("A", "B", "C")
	set.Remove("B/")

	entries := set.Entries()
	if len(entries) != 2 || entries[0] != "A" || entries[1] != "C" {
		t.Errorf("Entries() = %v, want [A C]", entries)
	}
}

func TestClear(t *testing.T) {
	set := New("A", "B")
	set.Clear()

	if set.IsExcluded("A") {
		t.Error("Expected nothing excluded after Clear")
	}
}

func TestConcurrentAccess(t *testing.T) {
	set := New("base")
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			set.Add("Documents/Archive")
			set.IsExcluded("Documents/Archive/file")
		}()
		go func() {
			defer wg.Done()
			set.Entries()
			set.IsExcluded("base/item")
		}()
	}
	wg.Wait()

	if !set.IsExcluded("base/item") {
		t.Error("Expected base/item excluded")
	}
}
