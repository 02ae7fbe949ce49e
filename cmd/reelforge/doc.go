// Command reelforge is the pipeline CLI. It runs the resident daemon,
// exposes one-shot worker passes for scheduler-driven setups, and provides
// queue, channel, and credit management commands.
package main
