package router

import "errors"

// ErrNoThreadAvailable is the one adapter-error the Router treats as
// "allow" rather than "deny" (spec.md §7: "Permission adapter throws |
// Respond deny ... | Permission request with no chat thread | Fallback
// chain (§4.5). If all fail → allow.").
var ErrNoThreadAvailable = errors.New("chatport: no thread available")
