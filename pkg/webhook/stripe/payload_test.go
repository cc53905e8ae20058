package stripe

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"
)

func testEvent(id, eventType string, objectJSON string) *stripe.Event {
	return &stripe.Event{
		ID:      id,
		Type:    stripe.EventType(eventType),
		Created: 1750000000,
		Data:    &stripe.EventData{Raw: json.RawMessage(objectJSON)},
	}
}

func TestExpandable_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantID     string
		wantInline bool
	}{
		{name: "id string", input: `"sub_123"`, wantID: "sub_123"},
		{name: "inline object", input: `{"id":"sub_123","status":"active"}`, wantID: "sub_123", wantInline: true},
		{name: "null", input: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e expandable
			if err := json.Unmarshal([]byte(tt.input), &e); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if e.ID != tt.wantID {
				t.Errorf("got id %q, want %q", e.ID, tt.wantID)
			}
			if (e.Raw != nil) != tt.wantInline {
				t.Errorf("inline raw presence = %v, want %v", e.Raw != nil, tt.wantInline)
			}
		})
	}
}

func TestInvoiceSubscription(t *testing.T) {
	t.Run("no parent", func(t *testing.T) {
		id, snap, err := invoiceSubscription(&invoicePayload{})
		if err != nil || id != "" || snap != nil {
			t.Errorf("expected empty result, got id=%q snap=%v err=%v", id, snap, err)
		}
	})

	t.Run("non-subscription parent", func(t *testing.T) {
		var p invoicePayload
		if err := json.Unmarshal([]byte(`{"parent":{"type":"quote_details"}}`), &p); err != nil {
			t.Fatal(err)
		}
		id, snap, _ := invoiceSubscription(&p)
		if id != "" || snap != nil {
			t.Errorf("non-subscription parent must yield nothing")
		}
	})

	t.Run("id only", func(t *testing.T) {
		var p invoicePayload
		raw := `{"parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1"}}}`
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			t.Fatal(err)
		}
		id, snap, err := invoiceSubscription(&p)
		if err != nil {
			t.Fatal(err)
		}
		if id != "sub_1" {
			t.Errorf("got id %q, want sub_1", id)
		}
		if snap != nil {
			t.Errorf("id-only field must not produce a snapshot")
		}
	})

	t.Run("inline object", func(t *testing.T) {
		var p invoicePayload
		raw := `{"parent":{"type":"subscription_details","subscription_details":{"subscription":{
			"id":"sub_1","status":"active","customer":"cus_1",
			"metadata":{"signup_session_id":"sess_1"},
			"items":{"data":[{"price":{"id":"price_monthly"},"current_period_start":1748736000,"current_period_end":1751328000}]}
		}}}}`
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			t.Fatal(err)
		}
		id, snap, err := invoiceSubscription(&p)
		if err != nil {
			t.Fatal(err)
		}
		if id != "sub_1" || snap == nil {
			t.Fatalf("expected inline snapshot for sub_1, got id=%q snap=%v", id, snap)
		}
		if snap.SignupSessionID != "sess_1" {
			t.Errorf("metadata correlation id not mapped: %q", snap.SignupSessionID)
		}
		if len(snap.Items) != 1 || snap.Items[0].PriceID != "price_monthly" {
			t.Errorf("items not mapped: %+v", snap.Items)
		}
		if !snap.Items[0].PeriodStart.Equal(time.Unix(1748736000, 0)) {
			t.Errorf("period start not mapped: %v", snap.Items[0].PeriodStart)
		}
	})
}

func TestDecodeCheckoutCompleted(t *testing.T) {
	ev, err := decodeCheckoutCompleted(testEvent("evt_1", "checkout.session.completed", `{
		"id":"cs_1","mode":"payment","payment_status":"paid",
		"customer":{"id":"cus_1","email":"owner@example.com"},
		"metadata":{"signup_session_id":"sess_1"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.SessionID != "cs_1" || ev.Mode != "payment" || ev.PaymentStatus != "paid" {
		t.Errorf("session fields not mapped: %+v", ev)
	}
	if ev.CustomerID != "cus_1" {
		t.Errorf("expanded customer id not mapped: %q", ev.CustomerID)
	}
	if ev.SignupSessionID != "sess_1" {
		t.Errorf("correlation id not mapped: %q", ev.SignupSessionID)
	}
	if ev.OccurredAt.Unix() != 1750000000 {
		t.Errorf("event timestamp not mapped: %v", ev.OccurredAt)
	}
}

func TestDecodeSubscriptionChange(t *testing.T) {
	ev, err := decodeSubscriptionChange(testEvent("evt_1", "customer.subscription.updated", `{
		"id":"sub_1","status":"past_due","customer":"cus_1",
		"cancel_at_period_end":true,"trial_end":1751328000
	}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Snapshot.ID != "sub_1" || ev.Snapshot.Status != "past_due" {
		t.Errorf("snapshot not mapped: %+v", ev.Snapshot)
	}
	if !ev.Snapshot.CancelAtPeriodEnd {
		t.Errorf("cancel_at_period_end not mapped")
	}
	if ev.Snapshot.TrialEnd == nil || ev.Snapshot.TrialEnd.Unix() != 1751328000 {
		t.Errorf("trial_end not mapped: %v", ev.Snapshot.TrialEnd)
	}
	if ev.Snapshot.CancelledAt != nil {
		t.Errorf("zero canceled_at must map to nil")
	}
	if ev.Deleted {
		t.Errorf("deleted flag must come from the event type, not the payload")
	}
}

func TestDecodePaymentFailed_FinalizationErrorFallback(t *testing.T) {
	ev, err := decodePaymentFailed(testEvent("evt_1", "invoice.payment_failed", `{
		"id":"in_1",
		"last_finalization_error":{"message":"Invoice finalization failed."},
		"payments":{"data":[{
			"created":1750000000,
			"payment":{"type":"payment_intent","payment_intent":"pi_1"}
		}]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(ev.Attempts))
	}
	if ev.Attempts[0].FailureMessage != "Invoice finalization failed." {
		t.Errorf("finalization error fallback not applied: %q", ev.Attempts[0].FailureMessage)
	}
}

func TestDecodePaymentFailed_IntentErrorWins(t *testing.T) {
	ev, err := decodePaymentFailed(testEvent("evt_1", "invoice.payment_failed", `{
		"id":"in_1",
		"last_finalization_error":{"message":"finalization"},
		"payments":{"data":[{
			"created":1750000000,
			"payment":{"type":"payment_intent","payment_intent":{
				"id":"pi_1","last_payment_error":{"message":"Your card was declined."}
			}}
		}]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Attempts[0].FailureMessage != "Your card was declined." {
		t.Errorf("intent error must take precedence: %q", ev.Attempts[0].FailureMessage)
	}
}

func TestDecodeAccountUpdate(t *testing.T) {
	ev, err := decodeAccountUpdate(testEvent("evt_1", "account.updated", `{
		"id":"acct_1","charges_enabled":true,"payouts_enabled":false,"details_submitted":true,
		"requirements":{
			"currently_due":["business_profile.url"],
			"eventually_due":["individual.dob.day"],
			"past_due":[],
			"pending_verification":[]
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.AccountID != "acct_1" || !ev.ChargesEnabled || ev.PayoutsEnabled || !ev.DetailsSubmitted {
		t.Errorf("account flags not mapped: %+v", ev)
	}
	if len(ev.Requirements.CurrentlyDue) != 1 || len(ev.Requirements.EventuallyDue) != 1 {
		t.Errorf("requirement sets not mapped: %+v", ev.Requirements)
	}
}

func TestDecodeAccountUpdate_NoRequirementsBlock(t *testing.T) {
	ev, err := decodeAccountUpdate(testEvent("evt_1", "account.updated", `{"id":"acct_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Requirements.CurrentlyDue) != 0 {
		t.Errorf("missing requirements must decode to empty sets")
	}
}
