package flow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

// ErrUnknownCommand is returned for a command type the engine does not know.
var ErrUnknownCommand = errors.New("flow: unknown command")

// Command is the tagged union of every state change the wizard can ask
// for. All mutation goes through Service.Dispatch with one of these, so
// changes stay traceable and testable without a UI event system.
type Command interface {
	commandName() string
}

// AllocateItem sets the quantity of one line item routed to one destination.
type AllocateItem struct {
	Destination int    `json:"destination"`
	LineItemID  string `json:"lineItemId"`
	Quantity    int64  `json:"quantity"`
}

// AddDestination appends a fresh, empty destination.
type AddDestination struct{}

// RemoveDestination deletes a destination and releases its quantities.
type RemoveDestination struct {
	Destination int `json:"destination"`
}

// EditAddress replaces a destination's postal address.
type EditAddress struct {
	Destination int              `json:"destination"`
	Address     commerce.Address `json:"address"`
}

// SelectMethod chooses the delivery method for a destination.
type SelectMethod struct {
	Destination      int    `json:"destination"`
	ShippingMethodID string `json:"shippingMethodId"`
}

// SetGiftMessage attaches a gift message to a destination.
type SetGiftMessage struct {
	Destination int    `json:"destination"`
	Message     string `json:"message"`
}

// ToggleSplit enters or leaves split-shipping mode.
type ToggleSplit struct {
	Enter bool `json:"enter"`
}

// ImportAddresses merges parsed upload rows into the destination list and
// advances the wizard to review.
type ImportAddresses struct {
	Addresses []commerce.Address `json:"addresses"`
}

// SetSingleShipping sets the single-address shipping destination.
type SetSingleShipping struct {
	Address commerce.Address `json:"address"`
}

// SetSingleBilling sets the single-address billing address.
type SetSingleBilling struct {
	Address commerce.Address `json:"address"`
}

// SelectSingleMethod chooses the delivery method in single-address mode.
type SelectSingleMethod struct {
	ShippingMethodID string `json:"shippingMethodId"`
}

// NextStep advances the wizard.
type NextStep struct{}

// PreviousStep steps the wizard back.
type PreviousStep struct{}

func (AllocateItem) commandName() string       { return "allocate-item" }
func (AddDestination) commandName() string     { return "add-destination" }
func (RemoveDestination) commandName() string  { return "remove-destination" }
func (EditAddress) commandName() string        { return "edit-address" }
func (SelectMethod) commandName() string       { return "select-method" }
func (SetGiftMessage) commandName() string     { return "set-gift-message" }
func (ToggleSplit) commandName() string        { return "toggle-split" }
func (ImportAddresses) commandName() string    { return "import-addresses" }
func (SetSingleShipping) commandName() string  { return "set-single-shipping" }
func (SetSingleBilling) commandName() string   { return "set-single-billing" }
func (SelectSingleMethod) commandName() string { return "select-single-method" }
func (NextStep) commandName() string           { return "next-step" }
func (PreviousStep) commandName() string       { return "previous-step" }

// DecodeCommand parses the wire envelope {"type": "...", ...fields}.
func DecodeCommand(data []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("flow: decode command envelope: %w", err)
	}
	var cmd Command
	switch envelope.Type {
	case "allocate-item":
		cmd = &AllocateItem{}
	case "add-destination":
		cmd = &AddDestination{}
	case "remove-destination":
		cmd = &RemoveDestination{}
	case "edit-address":
		cmd = &EditAddress{}
	case "select-method":
		cmd = &SelectMethod{}
	case "set-gift-message":
		cmd = &SetGiftMessage{}
	case "toggle-split":
		cmd = &ToggleSplit{}
	case "import-addresses":
		cmd = &ImportAddresses{}
	case "set-single-shipping":
		cmd = &SetSingleShipping{}
	case "set-single-billing":
		cmd = &SetSingleBilling{}
	case "select-single-method":
		cmd = &SelectSingleMethod{}
	case "next-step":
		cmd = &NextStep{}
	case "previous-step":
		cmd = &PreviousStep{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, envelope.Type)
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("flow: decode %s: %w", envelope.Type, err)
	}
	return cmd, nil
}
