// Package bridge relays typed messages between clippy's surfaces: the
// content script bound to the page, the background coordinator and the
// side panel.
//
// Messages are a closed set of variants decoded from the JSON wire shape
// {action, content?, selector?, html?, enabled?} at the boundary. Delivery
// is asynchronous: Send returns a Pending at once and the response arrives
// later, or never if the receiving surface goes away.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Action names a message kind on the wire.
type Action string

const (
	ActionToggleSelection    Action = "toggleSelection"
	ActionOpenSidePanel      Action = "openSidePanel"
	ActionResetElements      Action = "resetElements"
	ActionPasteFromClipboard Action = "pasteFromClipboard"
	ActionElementSelected    Action = "elementSelected"
	ActionSetEnabled         Action = "setEnabled"
)

// Message is one of the variants below.
type Message interface {
	Action() Action
	sealed()
}

// ToggleSelection flips pick mode in the content script.
type ToggleSelection struct{}

// OpenSidePanel asks the background coordinator to show the side panel.
type OpenSidePanel struct{}

// ResetElements clears any highlight and leaves pick mode.
type ResetElements struct{}

// PasteFromClipboard reads clipboard text in the active tab.
type PasteFromClipboard struct{}

// ElementSelected carries a finalised pick to the background coordinator.
type ElementSelected struct {
	Content  string
	Selector string
	HTML     string
}

// SetEnabled mirrors the popup's enable switch into the content script.
type SetEnabled struct {
	Enabled bool
}

func (ToggleSelection) Action() Action    { return ActionToggleSelection }
func (OpenSidePanel) Action() Action      { return ActionOpenSidePanel }
func (ResetElements) Action() Action      { return ActionResetElements }
func (PasteFromClipboard) Action() Action { return ActionPasteFromClipboard }
func (ElementSelected) Action() Action    { return ActionElementSelected }
func (SetEnabled) Action() Action         { return ActionSetEnabled }

func (ToggleSelection) sealed()    {}
func (OpenSidePanel) sealed()      {}
func (ResetElements) sealed()      {}
func (PasteFromClipboard) sealed() {}
func (ElementSelected) sealed()    {}
func (SetEnabled) sealed()         {}

type envelope struct {
	Action   Action  `json:"action"`
	Content  *string `json:"content,omitempty"`
	Selector string  `json:"selector,omitempty"`
	HTML     string  `json:"html,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// Decode validates and decodes a wire message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch env.Action {
	case "":
		return nil, fmt.Errorf("%w: missing action", ErrInvalidMessage)
	case ActionToggleSelection:
		return ToggleSelection{}, nil
	case ActionOpenSidePanel:
		return OpenSidePanel{}, nil
	case ActionResetElements:
		return ResetElements{}, nil
	case ActionPasteFromClipboard:
		return PasteFromClipboard{}, nil
	case ActionElementSelected:
		if env.Content == nil {
			return nil, fmt.Errorf("%w: %s requires content", ErrInvalidMessage, env.Action)
		}
		return ElementSelected{Content: *env.Content, Selector: env.Selector, HTML: env.HTML}, nil
	case ActionSetEnabled:
		if env.Enabled == nil {
			return nil, fmt.Errorf("%w: %s requires enabled", ErrInvalidMessage, env.Action)
		}
		return SetEnabled{Enabled: *env.Enabled}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
}

// Encode renders msg in the wire shape.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Action: msg.Action()}
	switch m := msg.(type) {
	case ElementSelected:
		env.Content = &m.Content
		env.Selector = m.Selector
		env.HTML = m.HTML
	case SetEnabled:
		env.Enabled = &m.Enabled
	}
	return json.Marshal(env)
}

// Response is the reply to every message.
type Response struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK is a bare success.
func OK() Response { return Response{Success: true} }

// Fail turns err into a failed response.
func Fail(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "Unknown error"}
	}
	return Response{Success: false, Error: err.Error()}
}
