// Package application provides application initialization and dependency wiring.
// It attaches the password hasher, the CORS policy and the token manager to a
// single App value, builds the router and HTTP server, and hands the App back to
// the caller, which may register further routes before starting it.
package application
