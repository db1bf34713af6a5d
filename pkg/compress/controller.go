package compress

import (
	"fmt"
	"math"
)

// Controller holds the calibration statistics collected from the registered
// data loaders. It is produced by consuming a Config exactly once.
type Controller struct {
	Algorithm string

	// Quantization range over input id values, and the derived uint8 scale.
	RangeMin, RangeMax float64
	Scale              float64
	RangeSamples       int

	// Batch-norm adaptation statistics: mean and variance of the per-example
	// active-token count.
	BNMean, BNVar float64
	BNSamples     int

	distributed bool
}

// Calibrate consumes the configuration: it runs every registered calibration
// loader and aggregates range and batch-norm statistics. A config can only
// be consumed once.
func Calibrate(cfg *Config) (*Controller, error) {
	if cfg.consumed {
		return nil, fmt.Errorf("compress: configuration already consumed")
	}
	cfg.consumed = true

	if len(cfg.extras) == 0 {
		return nil, fmt.Errorf("compress: no calibration data loaders registered")
	}

	ctrl := &Controller{
		Algorithm: cfg.Compression.Algorithm,
		RangeMin:  math.Inf(1),
		RangeMax:  math.Inf(-1),
	}
	for _, extra := range cfg.extras {
		loader := extra.initLoader()
		if loader == nil {
			continue
		}
		switch extra.(type) {
		case QuantizationRangeInitArgs:
			ctrl.initRange(loader, cfg.Compression.Initializer.Range.NumInitSamples)
		case BNAdaptationInitArgs:
			ctrl.adaptBN(loader, cfg.Compression.Initializer.BatchXrm.NumBNAdaptationSamples)
		}
		loader.Reset()
	}

	if ctrl.RangeSamples == 0 {
		return nil, fmt.Errorf("compress: calibration saw no samples")
	}
	if ctrl.RangeMax > ctrl.RangeMin {
		ctrl.Scale = (ctrl.RangeMax - ctrl.RangeMin) / 255.0
	}
	return ctrl, nil
}

func (c *Controller) initRange(loader *InitLoader, maxSamples int) {
	for {
		_, kwargs, ok := loader.Next()
		if !ok {
			return
		}
		ids, ok := kwargs[FieldInputIDs].([][]int)
		if !ok {
			return
		}
		for _, row := range ids {
			for _, id := range row {
				v := float64(id)
				if v < c.RangeMin {
					c.RangeMin = v
				}
				if v > c.RangeMax {
					c.RangeMax = v
				}
			}
			c.RangeSamples++
			if maxSamples > 0 && c.RangeSamples >= maxSamples {
				return
			}
		}
	}
}

func (c *Controller) adaptBN(loader *InitLoader, maxSamples int) {
	var sum, sumSq float64
	for {
		_, kwargs, ok := loader.Next()
		if !ok {
			break
		}
		mask, ok := kwargs[FieldAttentionMask].([][]int)
		if !ok {
			break
		}
		done := false
		for _, row := range mask {
			active := 0
			for _, m := range row {
				active += m
			}
			sum += float64(active)
			sumSq += float64(active) * float64(active)
			c.BNSamples++
			if maxSamples > 0 && c.BNSamples >= maxSamples {
				done = true
				break
			}
		}
		if done {
			break
		}
	}
	if c.BNSamples > 0 {
		n := float64(c.BNSamples)
		c.BNMean = sum / n
		c.BNVar = sumSq/n - c.BNMean*c.BNMean
	}
}

// Distributed marks the controller as running under multi-process training.
func (c *Controller) Distributed() {
	c.distributed = true
}

// Annotation describes the calibrated quantization for export metadata.
func (c *Controller) Annotation() string {
	return fmt.Sprintf("%s: range [%g, %g] scale %g over %d samples",
		c.Algorithm, c.RangeMin, c.RangeMax, c.Scale, c.RangeSamples)
}
