package protocol

import "github.com/GriffinCanCode/notchkit/pkg/descriptor"

// Method is the name of a callable operation.
type Method string

const (
	MethodRequestAuthorization Method = "requestAuthorization"
	MethodCheckAuthorization   Method = "checkAuthorization"
	MethodGetVersion           Method = "getVersion"

	MethodPresentLiveActivity Method = "presentLiveActivity"
	MethodUpdateLiveActivity  Method = "updateLiveActivity"
	MethodDismissLiveActivity Method = "dismissLiveActivity"

	MethodPresentLockScreenWidget Method = "presentLockScreenWidget"
	MethodUpdateLockScreenWidget  Method = "updateLockScreenWidget"
	MethodDismissLockScreenWidget Method = "dismissLockScreenWidget"

	MethodPresentNotchExperience Method = "presentNotchExperience"
	MethodUpdateNotchExperience  Method = "updateNotchExperience"
	MethodDismissNotchExperience Method = "dismissNotchExperience"
)

// Op is the operation a method performs, independent of descriptor kind.
type Op int

const (
	OpUnknown Op = iota
	OpRequestAuthorization
	OpCheckAuthorization
	OpGetVersion
	OpPresent
	OpUpdate
	OpDismiss
)

func (o Op) String() string {
	switch o {
	case OpRequestAuthorization:
		return "requestAuthorization"
	case OpCheckAuthorization:
		return "checkAuthorization"
	case OpGetVersion:
		return "getVersion"
	case OpPresent:
		return "present"
	case OpUpdate:
		return "update"
	case OpDismiss:
		return "dismiss"
	}
	return "unknown"
}

// Mutating reports whether the op can change host state.
func (o Op) Mutating() bool {
	switch o {
	case OpRequestAuthorization, OpPresent, OpUpdate, OpDismiss:
		return true
	}
	return false
}

type route struct {
	op   Op
	kind descriptor.Kind
}

var routes = map[Method]route{
	MethodRequestAuthorization: {op: OpRequestAuthorization},
	MethodCheckAuthorization:   {op: OpCheckAuthorization},
	MethodGetVersion:           {op: OpGetVersion},

	MethodPresentLiveActivity: {OpPresent, descriptor.KindLiveActivity},
	MethodUpdateLiveActivity:  {OpUpdate, descriptor.KindLiveActivity},
	MethodDismissLiveActivity: {OpDismiss, descriptor.KindLiveActivity},

	MethodPresentLockScreenWidget: {OpPresent, descriptor.KindLockScreenWidget},
	MethodUpdateLockScreenWidget:  {OpUpdate, descriptor.KindLockScreenWidget},
	MethodDismissLockScreenWidget: {OpDismiss, descriptor.KindLockScreenWidget},

	MethodPresentNotchExperience: {OpPresent, descriptor.KindNotchExperience},
	MethodUpdateNotchExperience:  {OpUpdate, descriptor.KindNotchExperience},
	MethodDismissNotchExperience: {OpDismiss, descriptor.KindNotchExperience},
}

// Lookup resolves a method to its op and, for presentation methods, the
// descriptor kind it targets.
func Lookup(m Method) (Op, descriptor.Kind, bool) {
	r, ok := routes[m]
	if !ok {
		return OpUnknown, "", false
	}
	return r.op, r.kind, true
}

// MethodFor is the inverse of Lookup for presentation ops.
func MethodFor(op Op, kind descriptor.Kind) (Method, bool) {
	for m, r := range routes {
		if r.op == op && r.kind == kind {
			return m, true
		}
	}
	return "", false
}

// Event names a host-to-extension notification.
type Event string

const (
	EventAuthorizationChanged     Event = "authorizationChanged"
	EventActivityDismissed        Event = "activityDismissed"
	EventWidgetDismissed          Event = "widgetDismissed"
	EventNotchExperienceDismissed Event = "notchExperienceDismissed"
)

// DismissEvent returns the notification sent when an item of kind is removed.
func DismissEvent(kind descriptor.Kind) Event {
	switch kind {
	case descriptor.KindLiveActivity:
		return EventActivityDismissed
	case descriptor.KindLockScreenWidget:
		return EventWidgetDismissed
	case descriptor.KindNotchExperience:
		return EventNotchExperienceDismissed
	}
	return ""
}
