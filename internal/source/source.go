// Package source produces synthetic capture streams: a multichannel test
// tone laid out like an 8-slot capture device, a running timecode and video
// access units read from an Annex-B elementary stream file. The record
// command feeds them to a writer.Session.
package source

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
)

// Sink receives produced samples. Returning an error stops the producer.
type Sink func(ctx context.Context, kind media.Kind, s *media.Sample) error

// producer yields the next sample of a stream.
type producer interface {
	Next() *media.Sample
}

// pace calls sink with p.Next() once per period until ctx ends or limit
// samples were delivered (limit <= 0 means no limit). It returns nil when the
// limit was reached and ctx.Err() on cancellation.
func pace(ctx context.Context, clk clock.WithTicker, period time.Duration, kind media.Kind, p producer, limit int, sink Sink) error {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ticker := clk.NewTicker(period)
	defer ticker.Stop()

	for n := 0; limit <= 0 || n < limit; n++ {
		s := p.Next()
		if s == nil {
			return nil
		}
		if err := sink(ctx, kind, s); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
	return nil
}

func ptsOf(n int64, rate int) time.Duration {
	return time.Duration(n * int64(time.Second) / int64(rate))
}
