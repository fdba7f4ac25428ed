// Package nativeref manages the lifetime of resources that live in a native
// library's memory and are referenced from Go by address.
//
// A Handle wraps one address and is either Owned (it frees the resource) or
// Borrowed (it never does). Owned handles are freed exactly once, by whichever
// happens first:
//
//   - an explicit Release, usually deferred or through a Scope
//   - the Reclaimer noticing the handle became unreachable
//   - Reclaimer.Flush at shutdown
//
// Objects that several owners keep alive are wrapped in SharedRef, which maps
// onto the native library's own reference count. BatchArray and the Bulk
// functions move one property of many objects across the boundary in a single
// call.
//
// Typical setup:
//
//	r := nativeref.NewReclaimer(nativeref.Config{Teardown: engine.Shutdown})
//	if err := r.Start(); err != nil {
//	    return err
//	}
//	defer r.Flush(context.Background())
//
//	body, err := r.Own(nativeref.Address(engine.CreateBody()), engine.FreeBody)
//	if err != nil {
//	    return err
//	}
//	defer body.Release()
package nativeref
