package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/sqweebloid/seedbank/internal/common"
)

// transientCodes are service responses worth retrying with backoff.
// Everything else the service answers is a protocol-level refusal.
var transientCodes = map[string]struct{}{
	"InternalError":       {},
	"SlowDown":            {},
	"RequestTimeout":      {},
	"ServiceUnavailable":  {},
	"Throttling":          {},
	"ThrottlingException": {},
}

// classify tags err as transient or protocol so the transfer engine can
// decide whether to retry. Context cancellation passes through as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
		}
		return fmt.Errorf("%w: %v", common.ErrRemoteProtocol, err)
	}

	// No service response at all: connection reset, DNS failure, etc.
	return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
}
