// Package async runs functions in their own goroutine and exposes the result
// as a Future.
//
//	future := async.Async(ctx, userID, fetchUser)
//	select {
//	case <-future.Done():
//		user, err := future.Await()
//	case <-stop:
//	}
//
// WaitAll waits for several futures and returns their results in order, or
// the first error. A panic inside the function is recovered and reported as
// an error wrapping ErrPanic. A context cancelled before the function starts
// skips it and reports the context error.
package async
