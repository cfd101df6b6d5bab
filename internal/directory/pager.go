package directory

import (
	"context"
	"fmt"
)

// Collect exhausts a cursor-based result set into one ordered slice.
// first produces the initial page; next exchanges a continuation token for
// the following one. Items are accumulated in fetch order. There is no bound
// on page count and no walker-level timeout: a stalled upstream is cut off by
// ctx, nothing else.
func Collect[T any](
	ctx context.Context,
	first func(context.Context) (Page[T], error),
	next func(context.Context, string) (Page[T], error),
) ([]T, error) {
	page, err := first(ctx)
	if err != nil {
		return nil, err
	}

	items := page.Items
	for page.NextToken != "" {
		page, err = next(ctx, page.NextToken)
		if err != nil {
			return nil, fmt.Errorf("fetching continuation page: %w", err)
		}
		items = append(items, page.Items...)
	}

	return items, nil
}
