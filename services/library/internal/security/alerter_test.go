package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestAlerter(t *testing.T) (*AuditAlerter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	a := NewAuditAlerter(mr.Addr(), "", "test:alerts")
	if a == nil {
		t.Fatalf("expected alerter")
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, mr
}

func TestAuditAlerterTriggersOnRepeatedLoginFailures(t *testing.T) {
	a, _ := newTestAlerter(t)
	ctx := context.Background()
	var last AlertResult
	for i := 0; i < 10; i++ {
		res, err := a.Observe(ctx, "auth.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 9 && res.Triggered {
			t.Fatalf("triggered early at %d", i+1)
		}
		last = res
	}
	if !last.Triggered || last.Count != 10 || last.Threshold != 10 {
		t.Fatalf("expected trigger on tenth failure, got %+v", last)
	}

	other, err := a.Observe(ctx, "auth.login", "fail", "10.0.0.9")
	if err != nil || other.Count != 1 {
		t.Fatalf("counters must be per ip, got %+v err=%v", other, err)
	}
}

func TestAuditAlerterDeleteDenialsHaveTighterRule(t *testing.T) {
	a, _ := newTestAlerter(t)
	ctx := context.Background()
	var res AlertResult
	for i := 0; i < 5; i++ {
		var err error
		res, err = a.Observe(ctx, "books.delete", "denied", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	if !res.Triggered {
		t.Fatalf("expected delete denials to trigger at 5, got %+v", res)
	}
	res, _ = a.Observe(ctx, "books.create", "denied", "127.0.0.1")
	if res.Threshold != 25 {
		t.Fatalf("expected wildcard denied rule, got %+v", res)
	}
}

func TestAuditAlerterWindowRollsOver(t *testing.T) {
	a, _ := newTestAlerter(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = a.Observe(ctx, "auth.login", "fail", "127.0.0.1")
	}
	a.now = func() time.Time { return base.Add(5 * time.Minute) }
	res, err := a.Observe(ctx, "auth.login", "fail", "127.0.0.1")
	if err != nil || res.Count != 1 {
		t.Fatalf("expected fresh window, got %+v err=%v", res, err)
	}
}

func TestAuditAlerterIgnoresUnknownRule(t *testing.T) {
	a, _ := newTestAlerter(t)
	res, err := a.Observe(context.Background(), "auth.login", "success", "127.0.0.1")
	if err != nil || res.Triggered || res.Count != 0 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var a *AuditAlerter
	if NewAuditAlerter(" ", "", "") != nil {
		t.Fatalf("expected nil alerter without addr")
	}
	if res, err := a.Observe(context.Background(), "auth.login", "fail", "ip"); err != nil || res.Triggered {
		t.Fatalf("nil alerter must be a no-op")
	}
}

func TestAuditAlerterRedisDown(t *testing.T) {
	a, mr := newTestAlerter(t)
	mr.Close()
	if _, err := a.Observe(context.Background(), "auth.login", "fail", "127.0.0.1"); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
