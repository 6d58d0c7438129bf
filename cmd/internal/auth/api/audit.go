package authapi

import (
	"context"
	"net"
	"time"

	"bazaar/cmd/internal/audit"
)

// Recorder receives audit events from the handlers. *audit.Recorder satisfies
// it; tests inject a capture.
type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

func (h *Handler) audit(ctx context.Context, e audit.Event) {
	if h == nil || h.rec == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	h.rec.Record(ctx, e)
}

func requestMeta(ip net.IP, userAgent string) map[string]string {
	meta := map[string]string{}
	if ip != nil {
		meta["ip"] = ip.String()
	}
	if userAgent != "" {
		meta["user_agent"] = userAgent
	}
	return meta
}
