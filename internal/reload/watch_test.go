package reload

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatchFile(t *testing.T) {
	f, err := ioutil.TempFile("", "iceagentd-watch-*.yml")
	if err != nil {
		t.Fatal(err)
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	n := NewNotifier()
	stop, err := WatchFile(name, n, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := ioutil.WriteFile(name, []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-n.C:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification after the file was written")
	}
}

func TestWatchFileMissing(t *testing.T) {
	n := NewNotifier()
	if _, err := WatchFile("/nonexistent/iceagentd.yml", n, zap.NewNop()); err == nil {
		t.Fatal("expected an error watching a nonexistent file")
	}
}
