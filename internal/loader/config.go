package loader

import "fmt"

// MaxBatchSize bounds a batch so a single insert stays within the bind
// parameter limits of the supported drivers (three parameters per record).
const MaxBatchSize = 10000

// Config defines how records are grouped into insert statements
type Config struct {
	// Records per transaction. The last batch of a run may be shorter.
	BatchSize int `toml:"batch_size" json:"batch_size"`
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		BatchSize: 100,
	}
}

// Validate checks the loader configuration
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be at most %d, got %d", MaxBatchSize, c.BatchSize)
	}
	return nil
}
