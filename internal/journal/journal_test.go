package journal

import (
	"context"
	"testing"
	"time"

	"github.com/capbridge/capbridge/internal/config"
	"github.com/capbridge/capbridge/internal/model"
	"github.com/capbridge/capbridge/internal/queue"
)

func journalConfig() config.JournalConfig {
	return config.JournalConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
}

func TestBarWriter_Transform(t *testing.T) {
	input := queue.New[model.Bar](16)
	w := NewBarWriter(journalConfig(), "EURUSD", "minute-5", input, nil, nil)

	barTs := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	bar := model.Bar{
		Time:   barTs,
		Open:   1.0801,
		High:   1.0812,
		Low:    1.0795,
		Close:  1.0810,
		Volume: 420,
	}

	row := w.transform(bar)

	if row.Epic != "EURUSD" {
		t.Errorf("Epic = %s, want EURUSD", row.Epic)
	}
	if row.Timeframe != "minute-5" {
		t.Errorf("Timeframe = %s, want minute-5", row.Timeframe)
	}
	if !row.BarTs.Equal(barTs) {
		t.Errorf("BarTs = %v, want %v", row.BarTs, barTs)
	}
	if row.Open != 1.0801 || row.High != 1.0812 || row.Low != 1.0795 || row.Close != 1.0810 {
		t.Errorf("prices = %+v, want bar prices", row)
	}
	if row.Volume != 420 {
		t.Errorf("Volume = %v, want 420", row.Volume)
	}
}

func TestBarWriter_HandleBar_AddsToBatch(t *testing.T) {
	input := queue.New[model.Bar](16)
	w := NewBarWriter(journalConfig(), "EURUSD", "hour", input, nil, nil)

	w.handleBar(model.Bar{Time: time.Now().UTC(), Close: 1.08})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestBarWriter_Lifecycle(t *testing.T) {
	cfg := config.JournalConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := queue.New[model.Bar](16)
	w := NewBarWriter(cfg, "EURUSD", "minute", input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestBarWriter_Stats(t *testing.T) {
	input := queue.New[model.Bar](16)
	w := NewBarWriter(journalConfig(), "EURUSD", "minute", input, nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 || stats.Errors != 0 || stats.Flushes != 0 {
		t.Errorf("initial stats = %+v, want zeros", stats)
	}
}

func TestNotificationWriter_Transform(t *testing.T) {
	input := queue.New[model.OrderNotification](16)
	w := NewNotificationWriter(journalConfig(), input, nil, nil)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	n := model.OrderNotification{
		Ref:           "o-1",
		Status:        model.NotifyCompleted,
		ExecutedPrice: 105.5,
		ExecutedSize:  -2,
		Reason:        "ORDER_FILLED",
		At:            at,
	}

	row := w.transform(n)

	if row.Ref != "o-1" {
		t.Errorf("Ref = %s, want o-1", row.Ref)
	}
	if row.Status != "Completed" {
		t.Errorf("Status = %s, want Completed", row.Status)
	}
	if !row.EventTs.Equal(at) {
		t.Errorf("EventTs = %v, want %v", row.EventTs, at)
	}
	if row.ExecutedPrice != 105.5 || row.ExecutedSize != -2 {
		t.Errorf("execution = %+v, want price 105.5 size -2", row)
	}
	if row.Reason != "ORDER_FILLED" {
		t.Errorf("Reason = %s, want ORDER_FILLED", row.Reason)
	}
}

func TestNotificationWriter_HandleNotification_AddsToBatch(t *testing.T) {
	input := queue.New[model.OrderNotification](16)
	w := NewNotificationWriter(journalConfig(), input, nil, nil)

	w.handleNotification(model.OrderNotification{Ref: "o-1", Status: model.NotifySubmitted, At: time.Now().UTC()})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestTradeWriter_HandleTrade_AddsToBatch(t *testing.T) {
	input := queue.New[model.TradeNotification](16)
	w := NewTradeWriter(journalConfig(), input, nil, nil)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	w.handleTrade(model.TradeNotification{Ref: "o-1", Closed: true, PnL: 12.5, At: at})

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if len(w.batch) != 1 {
		t.Fatalf("batch length = %d, want 1", len(w.batch))
	}
	row := w.batch[0]
	if row.Ref != "o-1" || row.PnL != 12.5 || !row.ClosedTs.Equal(at) {
		t.Errorf("row = %+v, want o-1 pnl 12.5 at %v", row, at)
	}
}

func TestNotificationWriter_Lifecycle(t *testing.T) {
	cfg := config.JournalConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := queue.New[model.OrderNotification](16)
	w := NewNotificationWriter(cfg, input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
