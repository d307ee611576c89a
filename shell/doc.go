// Package shell gates page rendering on the session.
//
// [Resolve] is the pure decision: given a session snapshot and a page
// [Requirement] it says whether to render, wait for hydration, or redirect.
// [Guard] adapts the decision to net/http.
//
//   - Public pages always render.
//   - Authenticated pages send anonymous users to the login route.
//   - GuestOnly pages (login, register) send signed-in users to their dashboard.
//   - A role list sends users of other roles to their own dashboard.
//
// Nothing is decided while the session is still hydrating; callers show a
// loading state instead.
package shell
