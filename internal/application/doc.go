// Package application provides generation runs and dependency wiring.
// Runner loads the property chain, generates the variant matrix and builds the
// report; App wraps it with storage, metrics, handlers, routers, a file watcher
// and the HTTP server, keeping the main package focused on CLI parsing and
// orchestration.
package application
