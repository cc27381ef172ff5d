// Package result provides a two-slot (value, error) wrapper for operations
// whose failure is an expected, handleable outcome.
//
// Go already returns errors as values, so most code never needs this package.
// It exists for the places where an operation may panic, may run on another
// goroutine, or may return a value together with an error. In all of those
// cases Handle and Go normalise the outcome into a Result with exactly one
// side populated, and the caller branches on Err without recover() or select
// boilerplate.
//
// # Usage
//
//	r := result.Handle(ctx, func(ctx context.Context) (int64, error) {
//	    return client.TicketID(ctx)
//	})
//	if r.Err != nil {
//	    // handle
//	}
//
//	ch := result.Go(ctx, fetchComments)
//	comments, err := result.Wait(ctx, ch).Unpack()
package result
