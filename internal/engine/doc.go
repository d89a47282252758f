// Package engine implements the function and workflow execution engine
//
// The Engine owns a FunctionRegistry of Invocable functions and a
// WorkflowRegistry of validated definitions. Executing a workflow runs its
// steps in declared order: each step's parameters are resolved against the
// workflow input and the raw results of earlier steps, the step's function
// is dispatched through the registry under a timeout, and declared output
// paths are projected into the workflow output. Failed steps consult their
// error handler, which may retry with backoff, redirect control to a later
// step, or terminate the workflow. Every transition is recorded through an
// ExecutionTracker so runs can be inspected while in flight and after they
// finish
package engine
