package response

import (
	"context"
	"strings"
	"time"

	"github.com/vikasavnish/httpsuite/pkg/value"
)

const pollInterval = 100 * time.Millisecond

// applyOptions filters matches by text, then pages the result.
func applyOptions(matches []value.Value, opts FindOptions) []value.Value {
	out := matches
	if opts.filtered() {
		out = make([]value.Value, 0, len(matches))
		for _, v := range matches {
			text := v.String()
			if opts.Contains != "" && !strings.Contains(text, opts.Contains) {
				continue
			}
			if opts.Matches != nil && !opts.Matches.MatchString(text) {
				continue
			}
			out = append(out, v)
		}
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []value.Value{}
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

type findAllFunc func(ctx context.Context, selector string, opts FindOptions) ([]value.Value, error)

// findFirst implements find-one for text-filtered queries as a find-all
// capped at one result.
func findFirst(ctx context.Context, findAll findAllFunc, selector string, opts FindOptions, origin value.Origin) (value.Value, error) {
	opts.Limit = 1
	matches, err := findAll(ctx, selector, opts)
	if err != nil {
		return value.Null(selector, selector, origin), err
	}
	if len(matches) == 0 {
		return value.Null(selector, selector, origin), nil
	}
	return matches[0], nil
}

type findFunc func(ctx context.Context) (value.Value, error)

// poll re-runs find until it yields a non-null Value, the timeout passes or
// ctx ends. The last result is returned on timeout.
func poll(ctx context.Context, timeout time.Duration, find findFunc) (value.Value, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		v, err := find(ctx)
		if err == nil && v.Exists() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			if err == nil && timeout > 0 && ctx.Err() == context.DeadlineExceeded {
				return v, nil
			}
			if err != nil {
				return v, err
			}
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}
