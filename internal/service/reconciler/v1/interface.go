package reconciler

import (
	"context"
	"net/http"
)

// Reconciler defines a set of methods for types implementing Reconciler.
type Reconciler interface {
	HandleCallback(ctx context.Context, providerName string, body []byte, header http.Header) error
}
