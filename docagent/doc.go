// Package docagent runs an LLM-backed agent that edits a line-addressed
// document through a fixed set of tools.
//
// The Agent drives a bounded iteration loop. Each iteration asks the model
// for a reply, dispatches any tool calls it requests, independently
// confirms claimed edits by re-reading the document, and decides whether
// to continue, correct the model, or stop.
//
// # Architecture
//
//   - Agent: the iteration controller. ProcessRequest owns one session
//     and always returns a Result.
//   - Dispatcher: runs a tool with bounded retries and a per-attempt
//     timeout that doubles on each attempt.
//   - MutationVerifier: counts an edit only when the document content
//     actually changed.
//   - RepetitionDetector: flags repeated model replies and stalled tool
//     output.
//   - ConvergenceChecker: a narrow DONE/CONTINUE question to the model,
//     backed by a deterministic FallbackPolicy.
//   - PlanBuilder: a one-shot, best-effort ordered plan.
//   - Listener / EventEmitter: progress delivery to the host application.
//
// # Quick Start
//
//	registry := docagent.NewToolRegistry()
//	doctools.Register(registry, store)
//
//	agent := docagent.NewAgent(docagent.NewLLMChat(client), store, registry,
//	    docagent.WithLogger(logger))
//
//	result := agent.ProcessRequest(ctx, docagent.Request{
//	    Goal:       "Add a conclusion section",
//	    DocumentID: "doc-1",
//	    Identity:   docagent.Identity{UserID: "u-1"},
//	}, nil)
//	fmt.Println(result.Status, result.FinalMessage)
package docagent
