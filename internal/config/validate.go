package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConversion() error {
	conv := c.Conversion
	if conv.Width < 1 {
		return fmt.Errorf("conversion.width must be positive (got %d)", conv.Width)
	}
	if conv.Height < 1 {
		return fmt.Errorf("conversion.height must be positive (got %d)", conv.Height)
	}
	if conv.FrameRate < 0 || math.IsNaN(conv.FrameRate) || math.IsInf(conv.FrameRate, 0) {
		return fmt.Errorf("conversion.frame_rate must be zero (auto) or positive (got %v)", conv.FrameRate)
	}
	if conv.Tiles < 0 {
		return fmt.Errorf("conversion.tiles must be zero or positive (got %d)", conv.Tiles)
	}
	if conv.GridCols < 0 || conv.GridRows < 0 {
		return fmt.Errorf("conversion.grid_cols and grid_rows must be zero or positive (got %dx%d)", conv.GridCols, conv.GridRows)
	}
	if conv.GridRows > 0 && conv.GridCols == 0 {
		return errors.New("conversion.grid_rows requires grid_cols")
	}
	if conv.Parallelism < 0 {
		return fmt.Errorf("conversion.parallelism must be zero (unbounded) or positive (got %d)", conv.Parallelism)
	}
	if conv.MemorySaving && conv.BoostMode {
		return errors.New("conversion.memory_saving and conversion.boost_mode are mutually exclusive")
	}
	if _, err := ParseSize(conv.DivisionSize); err != nil {
		return fmt.Errorf("conversion.division_size: %w", err)
	}
	switch conv.Compression {
	case CompressionNone, CompressionGzip:
	default:
		return fmt.Errorf("conversion.compression: unsupported value %q", conv.Compression)
	}
	switch conv.Layout {
	case LayoutAuto, LayoutTiled, LayoutSingleObject:
	default:
		return fmt.Errorf("conversion.layout: unsupported value %q", conv.Layout)
	}
	if conv.Layout == LayoutSingleObject && !conv.BoostMode {
		return errors.New("conversion.layout single-object requires conversion.boost_mode")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
