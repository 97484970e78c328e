package imagestore

import "KoordeDHT/internal/logger"

// Option customizes a Store at construction time.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}
