package fill

import (
	"context"
	"time"

	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/store"
	"go.uber.org/zap"
)

const refreshTimeout = 30 * time.Minute

// StartRefresh re-pulls yesterday's Mozilla prod dump on a fixed interval,
// items before users so inventory rows never reference a missing item.
// after runs once per successful refresh; the API uses it to rebuild the
// engine. The returned func stops the loop.
func StartRefresh(st store.Store, interval time.Duration, after func()) func() {
	if interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runRefresh(st, after)
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func runRefresh(st store.Store, after func()) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	url, err := MozillaURL("prod", time.Now().AddDate(0, 0, -1))
	if err != nil {
		return
	}
	loader := New(st, MozillaMapping())
	for _, kind := range []Kind{KindItems, KindUsers} {
		if _, err := loader.LoadURL(ctx, kind, url); err != nil {
			logging.L.Error("dump refresh failed", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
	}
	if after != nil {
		after()
	}
}
