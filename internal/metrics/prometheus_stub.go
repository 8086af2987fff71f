//go:build noprom

package metrics

// Built with -tags noprom: the no-op recorder stays installed.
func enablePrometheus(string) error { return nil }
