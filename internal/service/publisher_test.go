package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

// sequence returns the given ids in order, repeating the last one.
func sequence(ids ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[min(i, len(ids)-1)]
		i++
		return id, nil
	}
}

func TestPublish_CreatesThenUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, domain.CustomerInput{Name: "Ana", Phone: "0900"})

	first, err := f.publisher.PublishGenerated(ctx, c.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first.ShareURL != testBaseURL+"/card/"+first.ShareID {
		t.Errorf("unexpected share url %q", first.ShareURL)
	}
	if len(first.ShareID) != 12 {
		t.Errorf("expected 12 char share id, got %q", first.ShareID)
	}

	if _, err := f.store.IncrementViews(ctx, first.ShareID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	doc := json.RawMessage(`{"type":"bubble","body":{"type":"box","layout":"vertical","contents":[]}}`)
	second, err := f.publisher.Publish(ctx, domain.PublishRequest{CustomerID: c.ID, CardData: doc, Title: "Edited"})
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if second.ShareID != first.ShareID {
		t.Errorf("expected share id to be kept, got %q then %q", first.ShareID, second.ShareID)
	}

	card, err := f.publisher.GetPublished(ctx, c.ID)
	if err != nil {
		t.Fatalf("get published: %v", err)
	}
	if card.ViewCount != 1 {
		t.Errorf("expected view count kept at 1, got %d", card.ViewCount)
	}
	if card.Title != "Edited" || !bytes.Equal(card.CardData, doc) {
		t.Errorf("expected updated content, got %q %s", card.Title, card.CardData)
	}

	snap := f.metrics.Snapshot()
	if snap["cards_created"] != 1 || snap["cards_updated"] != 1 {
		t.Errorf("unexpected publish counters: %v", snap)
	}
}

func TestPublish_PreservesReceivedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, domain.CustomerInput{Name: "Ana"})

	doc := json.RawMessage(`{"type": "bubble", "size": "mega", "x-unknown": {"keep": true}}`)
	if _, err := f.publisher.Publish(ctx, domain.PublishRequest{CustomerID: c.ID, CardData: doc}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	card, err := f.publisher.GetPublished(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(card.CardData) != string(doc) {
		t.Errorf("stored document changed:\n got %s\nwant %s", card.CardData, doc)
	}
	if card.Title != "Ana's business card" {
		t.Errorf("unexpected default title %q", card.Title)
	}
}

func TestPublish_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, domain.CustomerInput{Name: "Ana"})

	var vErr *domain.ErrValidation
	_, err := f.publisher.Publish(ctx, domain.PublishRequest{})
	if !errors.As(err, &vErr) || vErr.Field != "customer_id" {
		t.Errorf("expected customer_id validation error, got %v", err)
	}

	_, err = f.publisher.Publish(ctx, domain.PublishRequest{CustomerID: c.ID, CardData: json.RawMessage(`{"type":"video"}`)})
	if !errors.As(err, &vErr) || vErr.Field != "card_data" {
		t.Errorf("expected card_data validation error, got %v", err)
	}

	_, err = f.publisher.PublishGenerated(ctx, 404)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPublish_RetriesShareIDCollision(t *testing.T) {
	f := newFixture(t, service.WithShareIDGenerator(sequence("taken000000", "taken000000", "fresh000000")))
	ctx := context.Background()
	a := f.customer(t, domain.CustomerInput{Name: "Ana"})
	b := f.customer(t, domain.CustomerInput{Name: "Bruno"})

	if _, err := f.publisher.PublishGenerated(ctx, a.ID); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	res, err := f.publisher.PublishGenerated(ctx, b.ID)
	if err != nil {
		t.Fatalf("publish b: %v", err)
	}
	if res.ShareID != "fresh000000" {
		t.Errorf("expected retry to use next id, got %q", res.ShareID)
	}
}

func TestPublish_CollisionRetriesAreBounded(t *testing.T) {
	f := newFixture(t, service.WithShareIDGenerator(sequence("always")))
	ctx := context.Background()
	a := f.customer(t, domain.CustomerInput{Name: "Ana"})
	b := f.customer(t, domain.CustomerInput{Name: "Bruno"})

	if _, err := f.publisher.PublishGenerated(ctx, a.ID); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	_, err := f.publisher.PublishGenerated(ctx, b.ID)
	if !errors.Is(err, port.ErrShareIDTaken) {
		t.Fatalf("expected ErrShareIDTaken, got %v", err)
	}

	if card, _ := f.store.GetActiveCard(ctx, b.ID); card != nil {
		t.Error("expected no card for b after failed publish")
	}
}

func TestPublish_ConcurrentSingleActiveCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, domain.CustomerInput{Name: "Ana"})

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.publisher.PublishGenerated(ctx, c.ID)
			if err != nil {
				t.Errorf("publish: %v", err)
				return
			}
			ids[i] = res.ShareID
		}()
	}
	wg.Wait()

	cards, err := f.publisher.ListPublished(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected exactly one active card, got %d", len(cards))
	}
	for _, id := range ids {
		if id != cards[0].ShareID {
			t.Errorf("expected every publish to return %q, got %q", cards[0].ShareID, id)
		}
	}
}

func TestUnpublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, domain.CustomerInput{Name: "Ana"})

	err := f.publisher.Unpublish(ctx, c.ID)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found without a card, got %v", err)
	}

	first, err := f.publisher.PublishGenerated(ctx, c.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := f.publisher.Unpublish(ctx, c.ID); err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if _, err := f.publisher.GetPublished(ctx, c.ID); !errors.As(err, &nf) {
		t.Errorf("expected no active card, got %v", err)
	}

	second, err := f.publisher.PublishGenerated(ctx, c.ID)
	if err != nil {
		t.Fatalf("publish again: %v", err)
	}
	if second.ShareID == first.ShareID {
		t.Error("expected a new share id after unpublish")
	}

	want := []string{domain.EventCardPublished, domain.EventCardUnpublished, domain.EventCardPublished}
	if got := f.events.types(); !slices.Equal(got, want) {
		t.Errorf("unexpected events %v", got)
	}
}

func TestPublish_EventFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	c := f.customer(t, domain.CustomerInput{Name: "Ana"})

	if _, err := f.publisher.PublishGenerated(context.Background(), c.ID); err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, domain.CustomerInput{Name: "Ana", Phone: "0900"})

	p, err := f.publisher.Preview(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.CustomerName != "Ana" {
		t.Errorf("unexpected customer name %q", p.CustomerName)
	}
	if !strings.HasPrefix(string(p.FlexMessage), `{"type":"flex","altText":"Ana's business card"`) {
		t.Errorf("unexpected flex message %s", p.FlexMessage)
	}

	cards, _ := f.publisher.ListPublished(context.Background())
	if len(cards) != 0 {
		t.Error("expected preview to have no side effects")
	}
}

func TestStatsAndExport(t *testing.T) {
	store := newFixture(t).store
	metrics := observability.NewMetrics()
	publisher := service.NewPublisherService(store, &mockEvents{}, &mockArchive{url: "https://s3.local/bucket"}, metrics, testBaseURL, zap.NewNop())
	customers := service.NewCustomerService(store, &mockEvents{}, zap.NewNop())
	ctx := context.Background()

	for _, name := range []string{"Ana", "Bruno"} {
		c, err := customers.Create(ctx, domain.CustomerInput{Name: name})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := publisher.PublishGenerated(ctx, c.ID); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	stats, err := publisher.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCustomers != 2 || stats.ActiveCards != 2 || len(stats.TopCards) != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Process["cards_created"] != 2 {
		t.Errorf("expected process counters, got %v", stats.Process)
	}

	export, err := publisher.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(export.Cards) != 2 {
		t.Errorf("expected 2 exported cards, got %d", len(export.Cards))
	}
	if !strings.HasPrefix(export.DownloadURL, "https://s3.local/bucket/cards-") {
		t.Errorf("unexpected download url %q", export.DownloadURL)
	}
}
