package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ps5_tracker.json")
	l := New(target)
	if l.Path() != target+".lock" {
		t.Errorf("Path() = %q", l.Path())
	}

	if err := l.Lock(context.Background(), time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Errorf("lock file missing while held: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Errorf("lock file removed by Unlock: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Errorf("second Unlock() error = %v", err)
	}
}

func TestLockContended(t *testing.T) {
	target := filepath.Join(t.TempDir(), "upload_tracker.json")
	first := New(target)
	if err := first.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	defer first.Unlock()

	second := New(target)
	start := time.Now()
	err := second.Lock(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Lock() error = %v, want ErrLockTimeout", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Lock() gave up before the timeout")
	}
}

func TestLockReleasedHandsOver(t *testing.T) {
	target := filepath.Join(t.TempDir(), "clips_tracker.json")
	first := New(target)
	if err := first.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		first.Unlock()
	}()

	second := New(target)
	if err := second.Lock(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	second.Unlock()
}

func TestLockContextCancelled(t *testing.T) {
	target := filepath.Join(t.TempDir(), "switch_tracker.json")
	first := New(target)
	if err := first.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	defer first.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(target).Lock(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Lock() error = %v, want context.Canceled", err)
	}
}

func TestLockTwice(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "t.json"))
	if err := l.Lock(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	defer l.Unlock()
	if err := l.Lock(context.Background(), 0); err == nil {
		t.Error("re-locking a held lock succeeded")
	}
}

func TestLockExcludesNewcomerAfterHandover(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ps5_tracker.json")
	first := New(target)
	if err := first.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	second := New(target)
	acquired := make(chan error, 1)
	go func() { acquired <- second.Lock(context.Background(), 2*time.Second) }()

	time.Sleep(30 * time.Millisecond)
	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := <-acquired; err != nil {
		t.Fatalf("waiting Lock() error = %v", err)
	}
	defer second.Unlock()

	third := New(target)
	if err := third.Lock(context.Background(), 0); !errors.Is(err, ErrLockTimeout) {
		third.Unlock()
		t.Fatalf("third Lock() error = %v, want ErrLockTimeout while second holds it", err)
	}
}
