package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

// metadataSignupSessionKey is the metadata key carrying the signup session
// id on checkout sessions and subscriptions. It is the only correlation key:
// customer email is deliberately never used as a fallback.
const metadataSignupSessionKey = "signup_session_id"

// expandable handles Stripe fields that arrive either as an id string or as
// an inline object.
type expandable struct {
	ID  string
	Raw json.RawMessage
}

func (e *expandable) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	e.ID = probe.ID
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	PaymentStatus string            `json:"payment_status"`
	Customer      expandable        `json:"customer"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionItemPayload struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type subscriptionPayload struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Customer          expandable        `json:"customer"`
	Metadata          map[string]string `json:"metadata"`
	CanceledAt        int64             `json:"canceled_at"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	TrialEnd          int64             `json:"trial_end"`
	Items             struct {
		Data []subscriptionItemPayload `json:"data"`
	} `json:"items"`
}

type invoicePaymentPayload struct {
	Created int64 `json:"created"`
	Payment struct {
		Type          string     `json:"type"`
		PaymentIntent expandable `json:"payment_intent"`
	} `json:"payment"`
}

type invoicePayload struct {
	ID            string `json:"id"`
	BillingReason string `json:"billing_reason"`
	Parent        *struct {
		Type                string `json:"type"`
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Payments *struct {
		Data []invoicePaymentPayload `json:"data"`
	} `json:"payments"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

type accountPayload struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Requirements     *struct {
		PendingVerification []string `json:"pending_verification"`
		PastDue             []string `json:"past_due"`
		CurrentlyDue        []string `json:"currently_due"`
		EventuallyDue       []string `json:"eventually_due"`
	} `json:"requirements"`
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// snapshotFromPayload maps a decoded subscription payload onto the domain
// snapshot type.
func snapshotFromPayload(p *subscriptionPayload) *billingsync.SubscriptionSnapshot {
	snap := &billingsync.SubscriptionSnapshot{
		ID:                p.ID,
		CustomerID:        p.Customer.ID,
		Status:            p.Status,
		SignupSessionID:   p.Metadata[metadataSignupSessionKey],
		CancelledAt:       unixTime(p.CanceledAt),
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		TrialEnd:          unixTime(p.TrialEnd),
	}
	for _, item := range p.Items.Data {
		snap.Items = append(snap.Items, billingsync.SubscriptionItem{
			PriceID:     item.Price.ID,
			PeriodStart: time.Unix(item.CurrentPeriodStart, 0).UTC(),
			PeriodEnd:   time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		})
	}
	return snap
}

// invoiceSubscription extracts the parent subscription of an invoice:
// the id, and the inline snapshot when the payload carried the expanded
// object. An empty id means the invoice's parent is not a subscription.
func invoiceSubscription(p *invoicePayload) (string, *billingsync.SubscriptionSnapshot, error) {
	if p.Parent == nil || p.Parent.Type != "subscription_details" || p.Parent.SubscriptionDetails == nil {
		return "", nil, nil
	}

	field := p.Parent.SubscriptionDetails.Subscription
	if field.Raw == nil {
		return field.ID, nil, nil
	}

	var sub subscriptionPayload
	if err := json.Unmarshal(field.Raw, &sub); err != nil {
		return "", nil, fmt.Errorf("decode inline subscription: %w", err)
	}
	return sub.ID, snapshotFromPayload(&sub), nil
}

func decodeCheckoutCompleted(event *stripe.Event) (billingsync.CheckoutCompleted, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return billingsync.CheckoutCompleted{}, fmt.Errorf("decode checkout session: %w", err)
	}

	return billingsync.CheckoutCompleted{
		EventID:         event.ID,
		SessionID:       session.ID,
		Mode:            billingsync.CheckoutMode(session.Mode),
		PaymentStatus:   session.PaymentStatus,
		SignupSessionID: session.Metadata[metadataSignupSessionKey],
		CustomerID:      session.Customer.ID,
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
	}, nil
}

func decodeInvoicePaid(event *stripe.Event) (billingsync.InvoicePaid, error) {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return billingsync.InvoicePaid{}, fmt.Errorf("decode invoice: %w", err)
	}

	subID, snapshot, err := invoiceSubscription(&invoice)
	if err != nil {
		return billingsync.InvoicePaid{}, err
	}

	return billingsync.InvoicePaid{
		EventID:        event.ID,
		InvoiceID:      invoice.ID,
		BillingReason:  invoice.BillingReason,
		SubscriptionID: subID,
		Subscription:   snapshot,
		OccurredAt:     time.Unix(event.Created, 0).UTC(),
	}, nil
}

func decodePaymentFailed(event *stripe.Event) (billingsync.PaymentFailed, error) {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return billingsync.PaymentFailed{}, fmt.Errorf("decode invoice: %w", err)
	}

	subID, snapshot, err := invoiceSubscription(&invoice)
	if err != nil {
		return billingsync.PaymentFailed{}, err
	}

	ev := billingsync.PaymentFailed{
		EventID:        event.ID,
		InvoiceID:      invoice.ID,
		SubscriptionID: subID,
		Subscription:   snapshot,
		OccurredAt:     time.Unix(event.Created, 0).UTC(),
	}

	if invoice.Payments != nil {
		for _, p := range invoice.Payments.Data {
			attempt := billingsync.PaymentAttempt{
				Type:      p.Payment.Type,
				CreatedAt: time.Unix(p.Created, 0).UTC(),
			}
			if p.Payment.PaymentIntent.Raw != nil {
				var intent struct {
					LastPaymentError *struct {
						Message string `json:"message"`
					} `json:"last_payment_error"`
				}
				if err := json.Unmarshal(p.Payment.PaymentIntent.Raw, &intent); err == nil &&
					intent.LastPaymentError != nil {
					attempt.FailureMessage = intent.LastPaymentError.Message
				}
			}
			if attempt.FailureMessage == "" && invoice.LastFinalizationError != nil {
				attempt.FailureMessage = invoice.LastFinalizationError.Message
			}
			ev.Attempts = append(ev.Attempts, attempt)
		}
	}

	return ev, nil
}

func decodeSubscriptionChange(event *stripe.Event, deleted bool) (billingsync.SubscriptionChange, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return billingsync.SubscriptionChange{}, fmt.Errorf("decode subscription: %w", err)
	}

	return billingsync.SubscriptionChange{
		EventID:    event.ID,
		Snapshot:   *snapshotFromPayload(&sub),
		Deleted:    deleted,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}, nil
}

func decodeAccountUpdate(event *stripe.Event) (billingsync.AccountUpdate, error) {
	var account accountPayload
	if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
		return billingsync.AccountUpdate{}, fmt.Errorf("decode account: %w", err)
	}

	ev := billingsync.AccountUpdate{
		EventID:          event.ID,
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		OccurredAt:       time.Unix(event.Created, 0).UTC(),
	}
	if account.Requirements != nil {
		ev.Requirements = billingsync.RequirementSets{
			PendingVerification: account.Requirements.PendingVerification,
			PastDue:             account.Requirements.PastDue,
			CurrentlyDue:        account.Requirements.CurrentlyDue,
			EventuallyDue:       account.Requirements.EventuallyDue,
		}
	}
	return ev, nil
}
