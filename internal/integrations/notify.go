package integrations

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// DesktopNotifier raises a desktop notification on the machine running
// the bridge.
type DesktopNotifier struct{}

func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{}
}

func (n *DesktopNotifier) Notify(title, body string) error {
	if err := beeep.Notify(title, body, ""); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}

	return nil
}
