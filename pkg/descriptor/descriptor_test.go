package descriptor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func ptr(f float64) *float64 { return &f }

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}

func TestDecode(t *testing.T) {
	t.Run("defaults priority and kind", func(t *testing.T) {
		d, err := Decode(KindLiveActivity, []byte(`{"id":"a","title":"Song"}`))
		require.NoError(t, err)

		la, ok := d.(LiveActivity)
		require.True(t, ok)
		assert.Equal(t, "a", la.Identifier())
		assert.Equal(t, PriorityNormal, la.Priority())
		assert.Equal(t, KindLiveActivity, la.DeclaredKind)
	})

	t.Run("notch experience with tab", func(t *testing.T) {
		raw := `{"kind":"notchExperience","id":"x","priority":"high","headline":"Hi",
			"tab":{"title":"Tab","icon":{"symbolName":"star"}},"allowsMusicCoexistence":true}`
		d, err := Decode(KindNotchExperience, []byte(raw))
		require.NoError(t, err)

		ne := d.(NotchExperience)
		assert.Equal(t, PriorityHigh, ne.Priority())
		assert.True(t, ne.AllowsCoexistence())
		require.NotNil(t, ne.Tab)
		assert.Equal(t, "star", ne.Tab.Icon.SymbolName)
	})

	t.Run("kind mismatch is malformed", func(t *testing.T) {
		_, err := Decode(KindLiveActivity, []byte(`{"kind":"lockScreenWidget","id":"a"}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformed))

		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "kind", fe.Field)
	})

	decodeFailures := []struct {
		name string
		kind Kind
		raw  string
	}{
		{"empty", KindLiveActivity, ""},
		{"not json", KindLiveActivity, "{{"},
		{"wrong type", KindLiveActivity, `{"id":5}`},
		{"array", KindLockScreenWidget, `[1,2]`},
		{"unknown kind", Kind("banner"), `{"id":"a"}`},
	}
	for _, tt := range decodeFailures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.kind, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}

	t.Run("oversized payload", func(t *testing.T) {
		raw := `{"id":"a","title":"` + strings.Repeat("x", MaxPayloadSize) + `"}`
		_, err := Decode(KindLiveActivity, []byte(raw))
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	in := LockScreenWidget{
		Base:  Base{DeclaredKind: KindLockScreenWidget, ID: "w", Level: PriorityLow},
		Title: "Steps",
		Icon:  &Icon{ImageData: pngHeader},
		Style: WidgetCircular,
		Gauge: ptr(0.4),
	}
	raw, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(KindLockScreenWidget, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	validActivity := func() LiveActivity {
		return LiveActivity{
			Base:  Base{ID: "a", Level: PriorityNormal, AccentColor: "#FF8800"},
			Title: "Now playing",
		}
	}

	tests := []struct {
		name      string
		d         Descriptor
		wantField string
	}{
		{name: "valid activity", d: validActivity()},
		{
			name: "missing id",
			d: func() Descriptor {
				d := validActivity()
				d.ID = "  "
				return d
			}(),
			wantField: "id",
		},
		{
			name: "unknown priority",
			d: func() Descriptor {
				d := validActivity()
				d.Level = "urgent"
				return d
			}(),
			wantField: "priority",
		},
		{
			name: "bad accent color",
			d: func() Descriptor {
				d := validActivity()
				d.AccentColor = "orange"
				return d
			}(),
			wantField: "accentColor",
		},
		{
			name: "markup in title",
			d: func() Descriptor {
				d := validActivity()
				d.Title = `<script>alert(1)</script>`
				return d
			}(),
			wantField: "title",
		},
		{
			name: "progress out of range",
			d: func() Descriptor {
				d := validActivity()
				d.Progress = ptr(1.5)
				return d
			}(),
			wantField: "progress",
		},
		{
			name: "progress with trailing text",
			d: func() Descriptor {
				d := validActivity()
				d.Progress = ptr(0.5)
				d.TrailingText = "3:12"
				return d
			}(),
			wantField: "progress",
		},
		{
			name: "icon with both sources",
			d: func() Descriptor {
				d := validActivity()
				d.LeadingIcon = &Icon{SymbolName: "music.note", ImageData: pngHeader}
				return d
			}(),
			wantField: "leadingIcon.imageData",
		},
		{
			name: "icon with no source",
			d: func() Descriptor {
				d := validActivity()
				d.LeadingIcon = &Icon{}
				return d
			}(),
			wantField: "leadingIcon.symbolName",
		},
		{
			name: "icon with non-image bytes",
			d: func() Descriptor {
				d := validActivity()
				d.LeadingIcon = &Icon{ImageData: []byte("<svg xmlns='http://www.w3.org/2000/svg'></svg>")}
				return d
			}(),
			wantField: "leadingIcon.imageData",
		},
		{
			name: "icon with png bytes",
			d: func() Descriptor {
				d := validActivity()
				d.LeadingIcon = &Icon{ImageData: pngHeader}
				return d
			}(),
		},
		{
			name: "gauge on rectangular widget",
			d: LockScreenWidget{
				Base:  Base{ID: "w", Level: PriorityNormal},
				Title: "Battery",
				Style: WidgetRectangular,
				Gauge: ptr(0.2),
			},
			wantField: "gauge",
		},
		{
			name: "unknown widget style",
			d: LockScreenWidget{
				Base:  Base{ID: "w", Level: PriorityNormal},
				Title: "Battery",
				Style: "square",
			},
			wantField: "style",
		},
		{
			name: "tab without icon",
			d: NotchExperience{
				Base:     Base{ID: "n", Level: PriorityHigh},
				Headline: "Timer",
				Tab:      &Tab{Title: "Timer"},
			},
			wantField: "tab.icon",
		},
		{
			name: "tab title too long",
			d: NotchExperience{
				Base:     Base{ID: "n", Level: PriorityHigh},
				Headline: "Timer",
				Tab:      &Tab{Title: strings.Repeat("t", 25), Icon: &Icon{SymbolName: "timer"}},
			},
			wantField: "tab.title",
		},
		{
			name: "plain text with ampersand",
			d: NotchExperience{
				Base:     Base{ID: "n", Level: PriorityLow},
				Headline: "Tom & Jerry",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.d)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantField, fe.Field)
			assert.NotEmpty(t, fe.Reason)
		})
	}
}

func TestParse(t *testing.T) {
	v := NewValidator()

	d, err := v.Parse(KindNotchExperience, []byte(`{"id":"x","headline":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", d.Identifier())

	_, err = v.Parse(KindNotchExperience, []byte(`{"headline":"Hello"}`))
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "id", fe.Field)

	_, err = v.Parse(KindNotchExperience, []byte(`{"id":"x","priority":"urgent","headline":"Hello"}`))
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "priority", fe.Field)
}
