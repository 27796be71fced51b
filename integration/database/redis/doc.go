// Package redis creates go-redis clients with retry and health checking.
//
// Connect parses a redis:// or rediss:// URL, then pings with exponential
// backoff until the server answers or the attempts run out:
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Healthcheck adapts the client to the func(context.Context) error shape
// used by health.Readiness:
//
//	mux.Handle("GET /health/ready", health.Readiness(log, redis.Healthcheck(client)))
//
// Errors wrap one of ErrEmptyConnectionURL, ErrFailedToParseRedisConnString,
// ErrRedisNotReady or ErrHealthcheckFailed and can be matched with errors.Is.
package redis
