package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

// APIResolver implements billingsync.SubscriptionResolver against the
// Stripe API, for the cases where a webhook payload carries only the
// subscription id.
type APIResolver struct {
	client *stripe.Client
}

// NewAPIResolver creates a resolver using the given Stripe secret key.
func NewAPIResolver(apiKey string) (*APIResolver, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	return &APIResolver{client: stripe.NewClient(apiKey)}, nil
}

// FetchSubscription implements billingsync.SubscriptionResolver.
func (r *APIResolver) FetchSubscription(ctx context.Context, subscriptionID string) (*billingsync.SubscriptionSnapshot, error) {
	sub, err := r.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	return snapshotFromAPI(sub), nil
}

// snapshotFromAPI maps a stripe-go subscription onto the domain snapshot.
func snapshotFromAPI(sub *stripe.Subscription) *billingsync.SubscriptionSnapshot {
	snap := &billingsync.SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelledAt:       unixTime(sub.CanceledAt),
		TrialEnd:          unixTime(sub.TrialEnd),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Metadata != nil {
		snap.SignupSessionID = sub.Metadata[metadataSignupSessionKey]
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			snapItem := billingsync.SubscriptionItem{PriceID: item.Price.ID}
			if start := unixTime(item.CurrentPeriodStart); start != nil {
				snapItem.PeriodStart = *start
			}
			if end := unixTime(item.CurrentPeriodEnd); end != nil {
				snapItem.PeriodEnd = *end
			}
			snap.Items = append(snap.Items, snapItem)
		}
	}
	return snap
}
