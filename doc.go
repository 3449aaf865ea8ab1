// Package streams is a portable Go implementation of the WHATWG Streams
// core: a Readable source, a Writable sink, and a Transform pair, joined by
// a Pipe loop and a Tee fork, all built on the same backpressure and
// locking protocol.
//
// Below is an example wiring a Readable source to a Writable sink with
// streams.PipeTo:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/relaystream/streams"
//		"github.com/relaystream/streams/pipe"
//		"github.com/relaystream/streams/readable"
//		"github.com/relaystream/streams/strategy/count"
//		"github.com/relaystream/streams/writable"
//	)
//
//	func main() {
//		ctx := context.Background()
//		hwm, _ := count.New[int](4)
//
//		src := streams.NewReadable(ctx, streams.UnderlyingSource[int]{
//			Start: func(_ context.Context, c *readable.Controller[int]) error {
//				for i := 1; i <= 3; i++ {
//					if err := c.Enqueue(i); err != nil {
//						return err
//					}
//				}
//				return c.Close()
//			},
//		}, hwm)
//
//		dst := streams.NewWritable(ctx, streams.UnderlyingSink[int]{
//			Write: func(_ context.Context, chunk int, _ *writable.Controller[int]) error {
//				fmt.Println("received", chunk)
//				return nil
//			},
//		}, hwm)
//
//		if err := streams.PipeTo(ctx, src, dst, pipe.Options{}); err != nil {
//			panic(err)
//		}
//	}
package streams
