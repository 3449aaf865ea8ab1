package transform

import "github.com/relaystream/streams/readable"

// Controller is the transform controller passed to Transformer.Transform
// and Transformer.Flush: it forwards Enqueue/Error to the output side's
// Default Controller and additionally recomputes backpressure on every
// enqueue, and exposes Terminate to end the pair early.
type Controller[O any] struct {
	rc           *readable.Controller[O]
	afterEnqueue func()
	terminate    func()
}

// Enqueue adds chunk to the output side, then recomputes backpressure.
func (c *Controller[O]) Enqueue(chunk O) error {
	if err := c.rc.Enqueue(chunk); err != nil {
		return err
	}
	if c.afterEnqueue != nil {
		c.afterEnqueue()
	}
	return nil
}

// Error errors the output side with err.
func (c *Controller[O]) Error(err error) { c.rc.Error(err) }

// DesiredSize reports how much room remains on the output side below its
// high-water mark.
func (c *Controller[O]) DesiredSize() (float64, bool) { return c.rc.DesiredSize() }

// Terminate ends the transform pair early: the output side closes, any
// blocked write unblocks, and the input side errors.
func (c *Controller[O]) Terminate() {
	if c.terminate != nil {
		c.terminate()
	}
}
