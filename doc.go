/*
Package threadgraph is a conversational request router built as a small, deterministic
state graph with thread-scoped checkpoints.

Every request carries a thread identifier and a user message. The engine loads the
thread's transcript, appends the message and runs a fixed graph:

	entry --(tool)--> tool --> respond --> terminal
	entry --(respond)---------> respond --> terminal

The entry node routes by keyword (add, plus, sum, multiply, times, minus, "divided by").
The tool node evaluates simple arithmetic and never fails the turn: any error becomes the
fixed text "could not compute". The respond node asks a language model for the reply,
giving it the tool result as context. At terminal the transcript is written back with a
compare-and-swap on the version that was loaded, so concurrent turns on one thread can
never silently drop each other.

# Usage

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(err)
	}
	app, err := threadgraph.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	reply, err := app.Engine.Run(ctx, "t1", "add 2 and 3")

Checkpoints can live in memory, Redis, a directory of files, SQLite or Postgres, selected
with STORE. See cmd/threadgraph for the HTTP server, MCP server and interactive chat.
*/
package threadgraph
