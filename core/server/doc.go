// Package server wraps http.Server with graceful shutdown, functional
// options and env-driven configuration.
//
// Write timeouts default to zero because event streams hold responses open
// indefinitely. Register the stream owner's Close with WithOnShutdown so
// that graceful shutdown does not wait on open streams:
//
//	srv := server.New(":8080",
//		server.WithLogger(log),
//		server.WithOnShutdown(func() { _ = t.Close() }),
//	)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, mux))
//	return g.Wait()
//
// Run returns a func() error suitable for errgroup; it starts the server
// and shuts it down gracefully when ctx is cancelled. Addr reports the bound
// address, which resolves ":0" to the chosen port.
package server
