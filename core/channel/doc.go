// Package channel provides the secured channel registry used to gate stream
// subscriptions.
//
// A pattern is a '/'-delimited list of segments. Segments starting with ':'
// are named captures that match exactly one non-empty segment; every other
// segment must match literally:
//
//	m := channel.NewMatcher()
//	_, _ = m.Register("users/:id")
//	_, _ = m.Register("rooms/:room/members/:member")
//
//	def, params, ok := m.Match("users/42")
//	// def.Pattern == "users/:id", params["id"] == "42", ok == true
//
// Leading and trailing slashes are ignored, so "/users/:id/" and "users/:id"
// describe the same pattern. A channel that matches no pattern is public.
//
// # Overlapping patterns
//
// Patterns are tried in registration order and the first match wins. The
// matcher does not detect overlaps: registering "users/:id" before
// "users/me" makes the second pattern unreachable.
//
// Registering a pattern that already exists keeps its original position.
package channel
