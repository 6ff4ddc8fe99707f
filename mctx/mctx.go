// Package mctx provides a small helper for carrying key/value annotations on
// a context.Context, the way mlog and merr want to attach extra fields to a
// log line or error without threading them through every function signature.
package mctx

import "context"

// Annotations is the set of key/value pairs which have been attached to a
// Context. Being a map, it has no defined iteration order.
type Annotations map[string]string

type annotationsKey struct{}

// Annotate returns a Context which carries the given key/value pairs in
// addition to any already present on ctx. Later calls win on key collision.
//
// kvs must be an even number of arguments, alternating key, value.
func Annotate(ctx context.Context, kvs ...string) context.Context {
	if len(kvs)%2 != 0 {
		panic("mctx.Annotate called with an odd number of arguments")
	}

	prev, _ := ctx.Value(annotationsKey{}).(Annotations)
	next := make(Annotations, len(prev)+len(kvs)/2)
	for k, v := range prev {
		next[k] = v
	}
	for i := 0; i < len(kvs); i += 2 {
		next[kvs[i]] = kvs[i+1]
	}
	return context.WithValue(ctx, annotationsKey{}, next)
}

// Get returns all annotations which have been attached to ctx via Annotate.
func Get(ctx context.Context) Annotations {
	aa, _ := ctx.Value(annotationsKey{}).(Annotations)
	return aa
}
