// Package commentmail is the composition root of the comment notification service.
//
// A wiki raises change events when comments are added or edited. commentmail
// turns those events into plain-text emails: the document author always hears
// about a comment, and with the narrow trigger the author of the comment being
// answered does too.
//
// Events come from a directory of Markdown documents watched on disk, and
// optionally from a Kafka topic. Mail goes out over SMTP without blocking the
// event loop; outcomes are logged, counted in Prometheus and, when configured,
// kept in a SQLite delivery log.
//
// Usage:
//
//	cfg, err := commentmail.LoadConfig("commentmail.yaml")
//	app, err := commentmail.New(cfg, commentmail.WithLogger(logger))
//	defer app.Close()
//	err = app.Run(ctx)
package commentmail
