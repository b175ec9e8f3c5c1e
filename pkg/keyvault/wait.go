package keyvault

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// waitForDeletion polls getDeleted until the soft-deleted copy becomes visible.
// A 404 means the delete is still in progress. A 403 is treated as done, since
// callers without "get deleted" permission can never observe completion.
func waitForDeletion(ctx context.Context, cfg Config, resource, name string, getDeleted func(context.Context) error) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := getDeleted(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case StatusCode(err) == http.StatusForbidden:
			return struct{}{}, nil
		case Classify(err) == KindNotFound:
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.DeletePollInterval)),
		backoff.WithMaxElapsedTime(cfg.DeleteTimeout),
	)

	cfg.Logger.Debug("delete wait finished",
		zap.String("resource", resource),
		zap.String("name", name),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	if err != nil && Classify(err) == KindNotFound {
		return fmt.Errorf("%w: %s %q not visible as deleted after %s", ErrDeleteTimeout, resource, name, cfg.DeleteTimeout)
	}
	return err
}
