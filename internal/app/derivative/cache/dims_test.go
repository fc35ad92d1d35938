package cache

import (
	"image"
	"testing"
)

func TestDimsCache(t *testing.T) {
	c, err := NewDimsCache(100)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, ok := c.Get("a.jpg|10|1"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set("a.jpg|10|1", image.Pt(800, 600))
	c.Wait()

	got, ok := c.Get("a.jpg|10|1")
	if !ok || got != image.Pt(800, 600) {
		t.Fatalf("got (%v, %v)", got, ok)
	}
	// 源文件变化后 key 不同
	if _, ok := c.Get("a.jpg|11|2"); ok {
		t.Fatal("changed source hit old entry")
	}
}

func TestNewDimsCacheRejectsZeroSize(t *testing.T) {
	if _, err := NewDimsCache(0); err == nil {
		t.Fatal("want error for zero capacity")
	}
}
