package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

func newMessaging(f *fixture, gw *mockGateway) *service.MessagingService {
	return service.NewMessagingService(f.store, gw, f.metrics, 4, zap.NewNop())
}

func TestSendCard_GeneratesWhenUnpublished(t *testing.T) {
	f := newFixture(t)
	gw := &mockGateway{}
	c := f.customer(t, domain.CustomerInput{Name: "Ana", ExternalUserID: "U1"})

	res, err := newMessaging(f, gw).SendCard(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Success || res.CustomerName != "Ana" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(gw.pushes) != 1 || gw.pushes[0].to != "U1" {
		t.Fatalf("unexpected pushes %+v", gw.pushes)
	}
	msg := gw.pushes[0].message
	if msg.Type != "flex" || msg.AltText != "Ana's business card" || msg.Contents.Type() != flex.TypeBubble {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSendCard_SendsPublishedDocument(t *testing.T) {
	f := newFixture(t)
	gw := &mockGateway{}
	c := f.customer(t, domain.CustomerInput{Name: "Ana", ExternalUserID: "U1"})

	doc := json.RawMessage(`{"type":"carousel","contents":[{"type":"bubble"},{"type":"bubble"}]}`)
	if _, err := f.publisher.Publish(context.Background(), domain.PublishRequest{CustomerID: c.ID, CardData: doc}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := newMessaging(f, gw).SendCard(context.Background(), c.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	contents := gw.pushes[0].message.Contents
	if contents.Type() != flex.TypeCarousel || contents.Len() != 2 {
		t.Errorf("expected stored carousel, got %s with %d bubbles", contents.Type(), contents.Len())
	}
}

func TestSendCard_Errors(t *testing.T) {
	f := newFixture(t)
	gw := &mockGateway{failFor: map[string]error{"U9": &domain.ErrTimeout{Operation: "LINE push"}}}
	svc := newMessaging(f, gw)
	ctx := context.Background()

	var nf *domain.ErrNotFound
	if _, err := svc.SendCard(ctx, 404); !errors.As(err, &nf) {
		t.Errorf("expected not found, got %v", err)
	}

	noLine := f.customer(t, domain.CustomerInput{Name: "Ana"})
	var vErr *domain.ErrValidation
	if _, err := svc.SendCard(ctx, noLine.ID); !errors.As(err, &vErr) || vErr.Field != "external_user_id" {
		t.Errorf("expected external_user_id validation, got %v", err)
	}

	slow := f.customer(t, domain.CustomerInput{Name: "Bruno", ExternalUserID: "U9"})
	var timeout *domain.ErrTimeout
	if _, err := svc.SendCard(ctx, slow.ID); !errors.As(err, &timeout) {
		t.Errorf("expected timeout, got %v", err)
	}
	if len(gw.pushes) != 0 {
		t.Errorf("expected no successful pushes, got %d", len(gw.pushes))
	}
	if f.metrics.Snapshot()["line_external_errors"] != 1 {
		t.Errorf("expected one external error, got %v", f.metrics.Snapshot())
	}
}

func TestSendBatch_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	gw := &mockGateway{failFor: map[string]error{"U3": &domain.ErrGateway{Service: "line", StatusCode: 400, Body: "bad"}}}
	a := f.customer(t, domain.CustomerInput{Name: "Ana", ExternalUserID: "U1"})
	b := f.customer(t, domain.CustomerInput{Name: "Bruno"})
	c := f.customer(t, domain.CustomerInput{Name: "Carla", ExternalUserID: "U3"})

	ids := []int64{a.ID, b.ID, c.ID, 999}
	res, err := newMessaging(f, gw).SendBatch(context.Background(), ids)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Total != 4 || res.SuccessCount != 1 || res.ErrorCount != 3 {
		t.Errorf("unexpected counts %+v", res)
	}
	for i, r := range res.Results {
		if r.CustomerID != ids[i] {
			t.Errorf("result %d: expected customer %d, got %d", i, ids[i], r.CustomerID)
		}
	}
	if !res.Results[0].Success {
		t.Errorf("expected first send to succeed: %+v", res.Results[0])
	}
	if res.Results[1].Error == "" || res.Results[1].CustomerName != "Bruno" {
		t.Errorf("expected named failure for customer without LINE id: %+v", res.Results[1])
	}
	if res.Results[2].Error == "" || res.Results[3].Error == "" {
		t.Errorf("expected failures for gateway error and unknown id: %+v", res.Results)
	}
}

func TestSendBatch_Validation(t *testing.T) {
	f := newFixture(t)
	svc := newMessaging(f, &mockGateway{})

	var vErr *domain.ErrValidation
	if _, err := svc.SendBatch(context.Background(), nil); !errors.As(err, &vErr) {
		t.Errorf("expected validation error for empty batch, got %v", err)
	}
	if _, err := svc.SendBatch(context.Background(), make([]int64, 501)); !errors.As(err, &vErr) {
		t.Errorf("expected validation error for oversized batch, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t)

	ok := &mockGateway{info: &domain.BotInfo{DisplayName: "Card Bot", UserID: "Ubot"}}
	res, err := newMessaging(f, ok).TestConnection(context.Background())
	if err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if !res.Success || res.BotInfo.DisplayName != "Card Bot" {
		t.Errorf("unexpected result %+v", res)
	}

	missing := &mockGateway{infoErr: &domain.ErrConfiguration{Setting: "LINE channel access token"}}
	_, err = newMessaging(f, missing).TestConnection(context.Background())
	var cfgErr *domain.ErrConfiguration
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if f.metrics.Snapshot()["line_external_errors"] != 0 {
		t.Error("configuration errors should not count as external errors")
	}
}
