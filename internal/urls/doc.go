// Package urls provides centralized constants for all documentation URLs used
// throughout the application.
//
// Hints printed next to errors link here, so a URL can be updated in one
// place.
//
// Usage:
//
//	import "github.com/muurk/trbr/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.FatalErrors)
package urls
