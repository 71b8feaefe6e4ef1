// Package profiler implements the call-stack tracking profiler for a bytecode
// virtual machine.
//
// The VM reports three kinds of events: entry into a bytecode function,
// instruction boundaries carrying the current frame pointer, and the
// boundaries of native and exported (public) calls. There is no return event;
// a bytecode function is considered to have returned once the VM frame pointer
// shows that its activation record is gone.
//
// The Profiler turns those events into per-function statistics (call count,
// inclusive time, time spent in callees) kept by Statistics, and into a call
// graph of caller/callee edges kept by CallGraph. Report writers read both
// through Snapshot once the VM has been detached.
//
// Event handlers never return errors and never panic on inconsistent input:
// anomalies are logged, counted and recovered from so that profiling cannot
// interrupt the host.
package profiler
