package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	st, err := NewFileStore(filepath.Join(root, "photos"))
	if err != nil {
		t.Fatal(err)
	}

	key, err := st.Save(context.Background(), "ORD-1/0_a.jpg", strings.NewReader("jpeg bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "ORD-1/0_a.jpg" {
		t.Errorf("key = %q", key)
	}

	data, err := os.ReadFile(filepath.Join(root, "photos", "ORD-1", "0_a.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestFileStoreOverwrites(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := st.Save(ctx, "k.jpg", strings.NewReader("old")); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(ctx, "k.jpg", strings.NewReader("new")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(st.root, "k.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("content after overwrite = %q", data)
	}
}
