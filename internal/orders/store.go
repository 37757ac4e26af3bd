package orders

import "context"

type Store interface {
	// Create reserves stock for every line and persists the order in one
	// atomic step. When o.ExternalID is already taken it reserves nothing and
	// returns the existing order with existed=true.
	Create(ctx context.Context, o Order) (stored Order, existed bool, err error)
	Get(ctx context.Context, id string) (Order, error)
	// Apply moves the order from t.From to t.To only if it is still in
	// t.From (ErrInvalidTransition otherwise). A move to cancelled releases
	// the order's stock in the same atomic step.
	Apply(ctx context.Context, t Transition) (Order, error)
}
