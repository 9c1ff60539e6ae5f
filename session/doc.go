// Package session houses concrete implementations of core.SessionStore. The
// interface itself (and the Session struct) live in the core package; keeping
// only implementations here prevents higher level packages from depending on
// concrete storage.
//
// Sessions are process local and expire after a period of inactivity.
package session
