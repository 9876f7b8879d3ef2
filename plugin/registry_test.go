package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
)

type sentCounter struct {
	name    string
	sent    atomic.Int64
	resends atomic.Int64
	err     error
}

func (p *sentCounter) Name() string { return p.name }

func (p *sentCounter) OnInvoiceSent(_ context.Context, _ *invoice.Invoice, resend bool) error {
	if resend {
		p.resends.Add(1)
	} else {
		p.sent.Add(1)
	}
	return p.err
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnQuotaExceeded(ctx context.Context, _, _ string, _, _ int64) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Register(&sentCounter{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&sentCounter{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if n := len(reg.Plugins()); n != 1 {
		t.Errorf("plugins = %d, want 1", n)
	}
}

func TestEmitReachesEveryPlugin(t *testing.T) {
	reg := plugin.NewRegistry()
	failing := &sentCounter{name: "failing", err: errors.New("boom")}
	ok := &sentCounter{name: "ok"}
	for _, p := range []plugin.Plugin{failing, ok} {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	inv := &invoice.Invoice{Number: "INV-0001"}
	reg.EmitInvoiceSent(context.Background(), inv, false)
	reg.EmitInvoiceSent(context.Background(), inv, true)

	if ok.sent.Load() != 1 || ok.resends.Load() != 1 {
		t.Errorf("ok plugin: sent=%d resends=%d", ok.sent.Load(), ok.resends.Load())
	}
	if failing.sent.Load() != 1 {
		t.Errorf("failing plugin was not called")
	}
}

func TestEmitTimesOutSlowPlugins(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := reg.Register(slowPlugin{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	reg.EmitQuotaExceeded(context.Background(), "biz_1", "2025-03", 3, 3)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %s", elapsed)
	}
}

func TestEmitWithoutSubscribers(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Register(&sentCounter{name: "sent-only"}); err != nil {
		t.Fatal(err)
	}
	reg.EmitRecurringRun(context.Background(), 2, 1, 1, time.Millisecond)
	reg.EmitInvoiceDeleted(context.Background(), "biz_1", "inv_1")
}
