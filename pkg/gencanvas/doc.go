/*
Package gencanvas tracks generation jobs against canvas nodes and merges
their results back into a live, user-editable node graph.

# Overview

A canvas is a set of nodes connected by parent -> child references: a
parent's generated artifact feeds a child's generation input (image to
image, or a video's last frame chaining into the next clip). Each node
carries a four-state lifecycle (idle, loading, success, error) and the
package provides the three pieces that move it:

  - Store: the authoritative in-memory node graph. All mutation happens
    through partial, field-level merges keyed by node id, which is what
    keeps user edits and asynchronous completions from clobbering each
    other.
  - Dispatcher: turns a "generate" action into a provider call. It
    resolves parent outputs into inputs, rejects duplicate dispatches
    for a node already loading, and routes through a provider lookup
    table keyed by node type.
  - Monitor: the recovery loop. Every node left loading - including
    nodes whose in-flight completions were lost to a restart - is polled
    against an idempotent status query until it resolves, with per-node
    failure isolation and a configurable watch ceiling.

# Providers

Backends implement the Provider interface in one of two modes. ModeSync
providers resolve within the call; ModeAsync providers accept the job
and report completion through the StatusChecker interface keyed by node
id, which is the same interface the monitor polls. Concrete adapters
(Gemini, Veo, Fal Kling, local diffusion subprocess, camera-angle
service) live in the provider subpackage.

# Example

	bus := event.NewBus()
	store := gencanvas.NewStore(gencanvas.WithBus(bus))

	providers := gencanvas.NewSet()
	providers.Register(gencanvas.TypeImage, imageProvider)

	dispatcher := gencanvas.NewDispatcher(store, providers)

	monitor := gencanvas.NewMonitor(store, checker,
		gencanvas.WithChangeFeed(bus),
		gencanvas.WithPollInterval(10*time.Second),
	)
	monitor.Start(ctx)
	defer monitor.Stop()

	node := gencanvas.NewNode(gencanvas.TypeImage)
	node.Prompt = "a cat"
	store.AddNode(node)

	if err := dispatcher.Generate(ctx, node.ID); err != nil {
		// the node also carries the error in ErrorMessage
	}

# Concurrency

The store is the only shared mutable resource. Reads return copies and
writes are field-level merges under the store lock, so the dispatcher's
synchronous completion and a concurrently running monitor pass for the
same node converge regardless of write order. The monitor fans out one
goroutine per watched node each pass; checks are independent and a
failing check never cancels the loop.
*/
package gencanvas
