// Package state provides a typed, in-memory FSM session store for Telegram bots.
// Sessions are keyed by chat or user id and carry a caller-defined payload.
package state
