package presentation

import "github.com/GriffinCanCode/notchkit/pkg/descriptor"

// Item is one visible entry in a View.
type Item struct {
	Owner      string                `json:"owner"`
	ID         string                `json:"id"`
	Priority   descriptor.Priority   `json:"priority"`
	Coexists   bool                  `json:"coexists"`
	Descriptor descriptor.Descriptor `json:"descriptor"`
}

// View is the render state of one region.
type View struct {
	Kind         descriptor.Kind `json:"kind"`
	Enabled      bool            `json:"enabled"`
	Slots        int             `json:"slots"`
	NativeActive bool            `json:"nativeActive"`
	Active       int             `json:"active"`
	Items        []Item          `json:"items"`
}

// Current returns the top visible item.
func (v View) Current() (Item, bool) {
	if len(v.Items) == 0 {
		return Item{}, false
	}
	return v.Items[0], true
}

// Region is the kind-erased view of a Manager used by the host.
type Region interface {
	Kind() descriptor.Kind
	Accept(owner string, d descriptor.Descriptor) error
	Dismiss(owner, id string) bool
	RemoveOwner(owner string) []string
	SetNativeActive(active bool)
	View() View
	Len() int
}

var (
	_ Region = (*Manager[descriptor.LiveActivity])(nil)
	_ Region = (*Manager[descriptor.LockScreenWidget])(nil)
	_ Region = (*Manager[descriptor.NotchExperience])(nil)
)

// NewRegions builds one region per kind.
func NewRegions(widgetSlots int) map[descriptor.Kind]Region {
	return map[descriptor.Kind]Region{
		descriptor.KindLiveActivity:     New[descriptor.LiveActivity](descriptor.KindLiveActivity, 1),
		descriptor.KindLockScreenWidget: New[descriptor.LockScreenWidget](descriptor.KindLockScreenWidget, widgetSlots),
		descriptor.KindNotchExperience:  New[descriptor.NotchExperience](descriptor.KindNotchExperience, 1),
	}
}
