package blob

import (
	"strings"
	"testing"
)

func TestObjectKeyDeterministic(t *testing.T) {
	data := []byte("schedule screenshot bytes")
	first := ObjectKey(data, "image/jpeg")
	second := ObjectKey(data, "image/jpeg")
	if first != second {
		t.Fatalf("expected identical keys, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "capture/") || !strings.HasSuffix(first, ".jpg") {
		t.Fatalf("unexpected key shape: %s", first)
	}
}

func TestObjectKeyVariesByContent(t *testing.T) {
	a := ObjectKey([]byte("a"), "image/png")
	b := ObjectKey([]byte("b"), "image/png")
	if a == b {
		t.Fatalf("different content produced the same key %s", a)
	}
}

func TestObjectKeyUnknownContentType(t *testing.T) {
	key := ObjectKey([]byte("a"), "application/pdf")
	if strings.Contains(key, ".") {
		t.Fatalf("unexpected extension in %s", key)
	}
}
