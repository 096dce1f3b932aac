package main

import (
	"context"

	"github.com/pkg/errors"
)

func (cli *commandLine) expireAttempt(id string) error {
	expired, err := cli.attemptSvc.ExpireIfOver(context.Background(), id)
	if err != nil {
		return errors.Wrap(err, "expiring attempt")
	}
	if expired {
		cli.success("attempt %s expired", id)
	} else {
		cli.notice("attempt %s left as is: completed or still running", id)
	}
	return nil
}

// expireAll sweeps every active attempt. A failing attempt is reported and skipped, the sweep goes on.
func (cli *commandLine) expireAll() error {
	ctx := context.Background()
	active, err := cli.attemptSvc.ActiveAttempts(ctx)
	if err != nil {
		return errors.Wrap(err, "listing active attempts")
	}

	var count, failed int
	for _, a := range active {
		expired, err := cli.attemptSvc.ExpireIfOver(ctx, a.ID)
		if err != nil {
			failed++
			cli.failure("expiring attempt %s: %v", a.ID, err)
			continue
		}
		if expired {
			count++
		}
	}

	if failed > 0 {
		cli.notice("%d of %d active attempts expired, %d failed", count, len(active), failed)
		return errors.Errorf("%d of %d active attempts could not be expired", failed, len(active))
	}
	cli.success("%d of %d active attempts expired", count, len(active))
	return nil
}
