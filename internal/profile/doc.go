// Package profile loads a declarative device profile and turns it into an
// engine dispatch table.
package profile
