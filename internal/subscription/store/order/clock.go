package order

import (
	"context"
	"time"

	"subport/pkg/requestcontext"
)

func nowFromContext(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}
