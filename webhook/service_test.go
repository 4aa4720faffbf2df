package webhook_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/event"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/store/memory"
	"github.com/fistfulayen/ubtrippin-sub001/vault"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

func ctx() context.Context { return context.Background() }

func newService(t *testing.T) (*webhook.Service, *vault.Vault) {
	t.Helper()
	v, err := vault.NewFromString("test-master-key-0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	return webhook.NewService(memory.New(), v, nil, nil), v
}

func TestWebhookServiceCreate(t *testing.T) {
	svc, v := newService(t)

	w, secret, err := svc.Create(ctx(), webhook.Input{
		UserID: "user-1",
		URL:    "https://example.com/hooks",
		Events: []string{event.TripCreated, event.TripCreated, event.ItemUpdated},
	})
	if err != nil {
		t.Fatal(err)
	}

	if w.ID.Prefix() != id.PrefixWebhook {
		t.Fatalf("expected wh prefix, got %q", w.ID.Prefix())
	}
	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("expected generated secret, got %q", secret)
	}
	if strings.Contains(w.SecretEncrypted, secret) {
		t.Fatal("secret stored in plaintext")
	}
	if w.SecretMask != vault.Mask(secret) {
		t.Fatalf("unexpected mask %q", w.SecretMask)
	}
	if !w.Enabled {
		t.Fatal("expected enabled by default")
	}
	if len(w.Events) != 2 {
		t.Fatalf("expected duplicate events collapsed, got %v", w.Events)
	}

	plain, err := v.Decrypt(w.SecretEncrypted)
	if err != nil {
		t.Fatal(err)
	}
	if plain != secret {
		t.Fatal("decrypted secret does not match")
	}
}

func TestWebhookServiceCreateValidation(t *testing.T) {
	svc, _ := newService(t)

	tests := []struct {
		name  string
		in    webhook.Input
		field string
	}{
		{"missing user", webhook.Input{URL: "https://example.com"}, "user_id"},
		{"plain http", webhook.Input{UserID: "u", URL: "http://example.com"}, "url"},
		{"loopback", webhook.Input{UserID: "u", URL: "https://127.0.0.1/x"}, "url"},
		{"unknown event", webhook.Input{UserID: "u", URL: "https://example.com", Events: []string{"invoice.paid"}}, "events"},
		{"ping event", webhook.Input{UserID: "u", URL: "https://example.com", Events: []string{event.Ping}}, "events"},
		{"short secret", webhook.Input{UserID: "u", URL: "https://example.com", Secret: "short"}, "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Create(ctx(), tt.in)
			var verr *webhook.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestWebhookServiceGetUpdateDelete(t *testing.T) {
	svc, _ := newService(t)

	w, _, err := svc.Create(ctx(), webhook.Input{
		UserID: "u1",
		URL:    "https://example.com/hooks",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx(), w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/hooks" {
		t.Fatalf("got URL %q", got.URL)
	}

	desc := "Updated description"
	events := []string{event.ItemCreated}
	updated, err := svc.Update(ctx(), w.ID, webhook.UpdateInput{
		Description: &desc,
		Events:      &events,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != desc {
		t.Fatalf("expected updated description, got %q", updated.Description)
	}
	if !updated.Subscribes(event.ItemCreated) || updated.Subscribes(event.TripCreated) {
		t.Fatalf("unexpected subscription set %v", updated.Events)
	}

	bad := "https://10.0.0.1/hook"
	if _, err := svc.Update(ctx(), w.ID, webhook.UpdateInput{URL: &bad}); err == nil {
		t.Fatal("expected private address to be rejected")
	}

	if err := svc.Delete(ctx(), w.ID); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Get(ctx(), w.ID)
	if !errors.Is(err, ubtrippin.ErrWebhookNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
}

func TestWebhookServiceList(t *testing.T) {
	svc, _ := newService(t)

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Create(ctx(), webhook.Input{UserID: "u1", URL: "https://example.com/hooks"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := svc.Create(ctx(), webhook.Input{UserID: "u2", URL: "https://example.com/hooks"}); err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx(), "u1", webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3, got %d", len(list))
	}
}

func TestWebhookServiceSetEnabled(t *testing.T) {
	svc, _ := newService(t)

	w, _, _ := svc.Create(ctx(), webhook.Input{UserID: "u1", URL: "https://example.com/hooks"})

	if err := svc.SetEnabled(ctx(), w.ID, false); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx(), w.ID)
	if got.Enabled {
		t.Fatal("expected disabled")
	}
}

func TestWebhookServiceRotateSecret(t *testing.T) {
	svc, v := newService(t)

	w, oldSecret, _ := svc.Create(ctx(), webhook.Input{UserID: "u1", URL: "https://example.com/hooks"})

	newSecret, err := svc.RotateSecret(ctx(), w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newSecret == oldSecret {
		t.Fatal("expected different secret after rotation")
	}

	got, _ := svc.Get(ctx(), w.ID)
	plain, err := v.Decrypt(got.SecretEncrypted)
	if err != nil {
		t.Fatal(err)
	}
	if plain != newSecret {
		t.Fatal("secret not persisted after rotation")
	}
	if got.SecretMask != vault.Mask(newSecret) {
		t.Fatal("mask not refreshed after rotation")
	}
}

func TestWebhookServiceRotateSecretNotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.RotateSecret(ctx(), id.NewWebhookID())
	if !errors.Is(err, ubtrippin.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}
