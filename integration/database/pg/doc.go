// Package pg creates pgx connection pools with retry and health checking.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// Pool sizing defaults suit a relay node that holds one dedicated LISTEN
// connection plus a few short-lived NOTIFY queries. Healthcheck adapts the
// pool to health.Readiness.
package pg
