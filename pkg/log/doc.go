/*
Package log provides structured logging for foreman using zerolog.

Initialize once at process start:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

Then use the global helpers or a context logger:

	log.Info("scheduler starting")
	schedLog := log.WithComponent("scheduler").With().Uint64("epoch", epoch.Generation).Logger()
	schedLog.Info().Str("job_id", id).Msg("assigned job")
*/
package log
