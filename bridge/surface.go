package bridge

// Surface is an independent execution context that can receive messages.
type Surface string

const (
	Content    Surface = "content"
	Background Surface = "background"
	Panel      Surface = "panel"
)

// Destination returns the surface that handles action.
func Destination(a Action) Surface {
	switch a {
	case ActionToggleSelection, ActionResetElements, ActionSetEnabled:
		return Content
	default:
		return Background
	}
}
