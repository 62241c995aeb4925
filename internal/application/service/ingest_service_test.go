package service

import (
	"context"
	"testing"

	"emax/internal/domain/model"
)

type fakeFeed struct {
	bars []model.Bar
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Subscribe(ctx context.Context, symbols []string) (<-chan model.Bar, error) {
	ch := make(chan model.Bar, len(f.bars))
	for _, b := range f.bars {
		ch <- b
	}
	close(ch)
	return ch, nil
}

func TestIngestWritesThroughToStoreAndCache(t *testing.T) {
	repo := newMockRepo()
	cache := newMockCache()
	bars := providerBars("ACME", 3)
	ingest := NewIngestService(&fakeFeed{bars: bars}, repo, cache, []string{"ACME"}, nil)

	if err := ingest.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	from := bars[0].Timestamp
	to := bars[len(bars)-1].Timestamp
	stored, err := repo.ReadRange(context.Background(), "ACME", from, to)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(stored) != len(bars) {
		t.Fatalf("expected %d stored bars, got %d", len(bars), len(stored))
	}
	if cache.sets != len(bars) {
		t.Errorf("expected %d cache updates, got %d", len(bars), cache.sets)
	}
}

func TestIngestReplayIsIdempotent(t *testing.T) {
	repo := newMockRepo()
	bars := providerBars("ACME", 2)
	// same bars twice, as after a feed reconnect
	feed := &fakeFeed{bars: append(append([]model.Bar{}, bars...), bars...)}
	ingest := NewIngestService(feed, repo, nil, []string{"ACME"}, nil)

	if err := ingest.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, err := repo.ReadRange(context.Background(), "ACME", bars[0].Timestamp, bars[1].Timestamp)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("replayed bars must not duplicate: got %d", len(stored))
	}
}
