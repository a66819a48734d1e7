package descriptor

// Kind names a presentation region.
type Kind string

const (
	KindLiveActivity     Kind = "liveActivity"
	KindLockScreenWidget Kind = "lockScreenWidget"
	KindNotchExperience  Kind = "notchExperience"
)

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindLiveActivity, KindLockScreenWidget, KindNotchExperience}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLiveActivity, KindLockScreenWidget, KindNotchExperience:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Priority is an ordered arbitration level. The zero value means "unset" and
// is normalized to PriorityNormal by Decode.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities; unknown values rank below everything.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool { return p.Rank() >= 0 }

// Descriptor is implemented by every concrete descriptor kind.
type Descriptor interface {
	Kind() Kind
	Identifier() string
	Priority() Priority
	// AllowsCoexistence reports whether the item may be shown next to the
	// host's own content in the same region.
	AllowsCoexistence() bool
}

// Base carries the fields every kind shares.
type Base struct {
	DeclaredKind Kind     `json:"kind,omitempty"`
	ID           string   `json:"id" validate:"notblank,max=128"`
	Level        Priority `json:"priority,omitempty" validate:"oneof=low normal high critical"`
	AccentColor  string   `json:"accentColor,omitempty" validate:"omitempty,hexcolor"`
}

// Identifier returns the descriptor id.
func (b Base) Identifier() string { return b.ID }

// Priority returns the arbitration priority.
func (b Base) Priority() Priority { return b.Level }

// Icon is either a named system symbol or inline image bytes, never both.
type Icon struct {
	SymbolName string `json:"symbolName,omitempty" validate:"omitempty,max=128,nomarkup"`
	ImageData  []byte `json:"imageData,omitempty"`
}

// Tab is the notch tab an experience contributes.
type Tab struct {
	Title string `json:"title" validate:"notblank,max=24,nomarkup"`
	Icon  *Icon  `json:"icon" validate:"required"`
}

// LiveActivity is a compact, media-style item shown around the notch.
type LiveActivity struct {
	Base
	Title        string   `json:"title" validate:"notblank,max=80,nomarkup"`
	Subtitle     string   `json:"subtitle,omitempty" validate:"max=120,nomarkup"`
	LeadingIcon  *Icon    `json:"leadingIcon,omitempty"`
	TrailingText string   `json:"trailingText,omitempty" validate:"max=32,nomarkup"`
	Progress     *float64 `json:"progress,omitempty" validate:"omitempty,gte=0,lte=1"`

	AllowsMusicCoexistence bool `json:"allowsMusicCoexistence,omitempty"`
}

// Kind implements Descriptor.
func (LiveActivity) Kind() Kind { return KindLiveActivity }

// AllowsCoexistence implements Descriptor.
func (d LiveActivity) AllowsCoexistence() bool { return d.AllowsMusicCoexistence }

// WidgetStyle selects the lock-screen widget layout.
type WidgetStyle string

const (
	WidgetInline      WidgetStyle = "inline"
	WidgetCircular    WidgetStyle = "circular"
	WidgetRectangular WidgetStyle = "rectangular"
)

// LockScreenWidget is a small card shown on the lock screen.
type LockScreenWidget struct {
	Base
	Title string      `json:"title" validate:"notblank,max=60,nomarkup"`
	Body  string      `json:"body,omitempty" validate:"max=240,nomarkup"`
	Icon  *Icon       `json:"icon,omitempty"`
	Style WidgetStyle `json:"style,omitempty" validate:"omitempty,oneof=inline circular rectangular"`
	Gauge *float64    `json:"gauge,omitempty" validate:"omitempty,gte=0,lte=1"`

	AllowsNativeCoexistence bool `json:"allowsNativeCoexistence,omitempty"`
}

// Kind implements Descriptor.
func (LockScreenWidget) Kind() Kind { return KindLockScreenWidget }

// AllowsCoexistence implements Descriptor.
func (d LockScreenWidget) AllowsCoexistence() bool { return d.AllowsNativeCoexistence }

// NotchExperience is a richer panel, optionally with its own notch tab.
type NotchExperience struct {
	Base
	Headline string `json:"headline" validate:"notblank,max=80,nomarkup"`
	Body     string `json:"body,omitempty" validate:"max=1000,nomarkup"`
	Tab      *Tab   `json:"tab,omitempty"`

	AllowsMusicCoexistence bool `json:"allowsMusicCoexistence,omitempty"`
}

// Kind implements Descriptor.
func (NotchExperience) Kind() Kind { return KindNotchExperience }

// AllowsCoexistence implements Descriptor.
func (d NotchExperience) AllowsCoexistence() bool { return d.AllowsMusicCoexistence }
