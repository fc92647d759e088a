// Package handlers contains the built-in dispatch handlers: token based
// authentication and a generic records API backed by the database and the
// tagged response cache.
package handlers
