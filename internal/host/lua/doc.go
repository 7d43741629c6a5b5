// Package lua runs Lua programs under the debugger.
//
// gopher-lua has no debug hooks, so the host instruments code as it is
// loaded: the parsed chunk is rewritten to call the host at every function
// entry, before every statement and at every return, then compiled. The
// hook functions are locals of the rewritten chunk, invisible to the
// program's environments. Tail calls stay tail calls. Files
// run with Run, loaded with require, loadfile or dofile, and strings loaded
// with load or loadstring are all instrumented.
//
// # Frames
//
// The host keeps a shadow stack of instrumented activations. Each frame
// remembers the gopher-lua activation record it runs in, so locals and
// upvalues are read from the live Lua stack. Frames unwound by an error keep
// a snapshot of their locals for post-mortem inspection.
//
// # Errors
//
// pcall and xpcall are replaced by versions that report errors before the
// Lua stack unwinds. The debugger sees an exception event in the raising
// frame; an error nobody catches ends Run with a *debugger.Exception.
//
// # Program API
//
// Programs can stop themselves:
//
//	local stepdb = require("stepdb")
//	stepdb.set_trace()
//
// Coroutines run untraced.
package lua
