// Package extraction turns a transcript into typed entities.
//
// The main components are:
//   - Segment: splits a transcript into clauses
//   - Classifier: rule-based extraction, deterministic for a given clock
//   - CompletionMatcher: detects "mark as done" references to active entities
//   - CloudClient: Anthropic or OpenAI backed extraction
//   - Orchestrator: picks a strategy (local, remote or hybrid) and returns
//     exactly one strategy's result
//
// Model backends must embed a JSON object in their output:
//
//	{"entities":[{"type":"todo","content":"call mom","metadata":{}}],
//	 "completions":[{"entityId":"ent_...","confidence":0.9,"reason":"..."}],
//	 "summary":"..."}
//
// Output without a parseable object is treated as no extraction
// (ErrNoExtraction), never as a caller-visible parse error in hybrid mode.
//
// Usage:
//
//	classifier := extraction.NewClassifier(dates.NewResolver(nil))
//	orch, err := extraction.NewOrchestrator(extraction.ModeHybrid, classifier,
//	    extraction.WithCloud(cloud),
//	    extraction.WithOnDevice(model),
//	)
//	result, err := orch.Extract(ctx, transcript, active)
package extraction
