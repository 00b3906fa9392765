package wizard

import (
	"errors"
	"fmt"
)

// Step is one screen in the guided allocation flow.
type Step string

const (
	// StepUpload lets the shopper import an address file. Optional.
	StepUpload Step = "upload"
	// StepReview is the tabular add/edit of destinations before
	// per-item allocation.
	StepReview Step = "review"
	// StepAllocate is the per-destination item/quantity/method editing.
	StepAllocate Step = "allocate"
)

// ErrInvalidTransition is returned for a step change the flow does not allow.
var ErrInvalidTransition = errors.New("wizard: invalid step transition")

// InitialStep picks the starting screen for a freshly loaded cart. A cart
// that already carries item-shipping addresses resumes an in-progress
// split directly at allocation; otherwise the flow starts at upload when
// CSV import is enabled, else at review.
func InitialStep(hasItemShippingAddresses, uploadEnabled bool) Step {
	if hasItemShippingAddresses {
		return StepAllocate
	}
	if uploadEnabled {
		return StepUpload
	}
	return StepReview
}

// Controller sequences the shopper through the wizard. Transitions are
// strictly forward via explicit user actions or backward via an explicit
// previous; nothing is time-driven and no step is terminal.
type Controller struct {
	Step          Step `json:"step"`
	UploadEnabled bool `json:"uploadEnabled"`
}

// Next advances to the following step.
func (c *Controller) Next() error {
	switch c.Step {
	case StepUpload:
		c.Step = StepReview
	case StepReview:
		c.Step = StepAllocate
	default:
		return fmt.Errorf("%w: no step after %s", ErrInvalidTransition, c.Step)
	}
	return nil
}

// Previous steps back to the preceding screen.
func (c *Controller) Previous() error {
	switch c.Step {
	case StepAllocate:
		c.Step = StepReview
	case StepReview:
		if !c.UploadEnabled {
			return fmt.Errorf("%w: upload step is disabled", ErrInvalidTransition)
		}
		c.Step = StepUpload
	default:
		return fmt.Errorf("%w: no step before %s", ErrInvalidTransition, c.Step)
	}
	return nil
}
