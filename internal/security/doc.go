// Package security provides the password hashing and token management
// capabilities attached to the application at startup.
package security
