package routingtable

import "KoordeDHT/internal/logger"

// Option customizes a FingerTable at construction time.
type Option func(*FingerTable)

// WithLogger sets the logger used by the finger table.
func WithLogger(l logger.Logger) Option {
	return func(ft *FingerTable) {
		ft.logger = l
	}
}
