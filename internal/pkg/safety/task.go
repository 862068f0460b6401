package safety

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nite-coder/blackbear/pkg/cast"
	"github.com/nite-coder/refresh-dns/pkg/log"
)

// Go runs f and recovers any panic it raises, logging it with the stack.
// It is meant for helper goroutines whose failure must not take the refreshers down:
//
//	go safety.Go(ctx, f)
func Go(ctx context.Context, f func()) {
	defer func() {
		if r := recover(); r != nil {
			var err error
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("%v", v)
			}
			stackTrace := debug.Stack()
			log.FromContext(ctx).Error("safety Go panic recovered",
				slog.String("error", err.Error()),
				slog.String("stack", cast.B2S(stackTrace)),
			)
		}
	}()
	f()
}
