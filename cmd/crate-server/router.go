package main

import (
	"io"
	"strings"
)

// commandHandler writes a response for one parsed command to w. It can
// assume the router already checked arity — it never sees a wrong-arg-count
// call.
type commandHandler func(w io.Writer, args []string)

// arity reports whether a command call with n arguments (excluding the
// command name itself) is well-formed. Most commands here take a fixed
// argument count, but CRATE.CONTAINN's batch must be exactly 64 or 128 keys
// — a single min/max range would also accept 65 or 100, so arity is a
// predicate rather than a [min,max] pair.
type arity func(n int) bool

// exactly builds an arity that accepts only n arguments.
func exactly(n int) arity {
	return func(got int) bool { return got == n }
}

// oneOf builds an arity that accepts any of the given argument counts, the
// shape CRATE.CONTAINN needs (64 or 128, nothing in between).
func oneOf(ns ...int) arity {
	return func(got int) bool {
		for _, n := range ns {
			if got == n {
				return true
			}
		}
		return false
	}
}

// anyArity accepts every argument count; used for PING, which ignores its
// arguments rather than rejecting extras.
func anyArity(int) bool { return true }

type commandSpec struct {
	handler commandHandler
	arity   arity
}

// router maps command names to their handler and arity check.
type router struct {
	specs map[string]commandSpec
}

func newRouter() *router {
	return &router{specs: make(map[string]commandSpec)}
}

func (r *router) handle(name string, a arity, h commandHandler) {
	r.specs[strings.ToUpper(name)] = commandSpec{handler: h, arity: a}
}

func (r *router) dispatch(app *application, w io.Writer, parts []string) {
	if len(parts) == 0 {
		return
	}

	app.metrics.commandsTotal.Inc()

	name := strings.ToUpper(parts[0])
	args := parts[1:]

	spec, found := r.specs[name]
	if !found {
		_ = writeErrorResponse(w, "ERR unknown command '"+name+"'")
		return
	}
	if !spec.arity(len(args)) {
		_ = writeErrorResponse(w, "ERR wrong number of arguments for '"+name+"' command")
		return
	}
	spec.handler(w, args)
}
