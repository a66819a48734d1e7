package descriptor

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// MaxImageSize bounds inline icon image data.
const MaxImageSize = 256 << 10

var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Validator checks decoded descriptors. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

// NewValidator builds a validator with the descriptor rule set registered.
func NewValidator() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		policy:   bluemonday.StrictPolicy(),
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.validate.RegisterValidation("nomarkup", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return html.UnescapeString(v.policy.Sanitize(s)) == s
	})

	v.validate.RegisterStructValidation(iconRules, Icon{})
	v.validate.RegisterStructValidation(liveActivityRules, LiveActivity{})
	v.validate.RegisterStructValidation(widgetRules, LockScreenWidget{})

	return v
}

// Validate reports the first broken rule as a *FieldError.
func (v *Validator) Validate(d Descriptor) error {
	if d == nil {
		return malformed("descriptor", "missing")
	}
	if !d.Priority().Valid() {
		return malformed("priority", fmt.Sprintf("unrecognized priority %q", d.Priority()))
	}

	err := v.validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return malformed(fieldPath(fe.Namespace()), reason(fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// Parse decodes and validates in one step.
func (v *Validator) Parse(kind Kind, raw []byte) (Descriptor, error) {
	d, err := Decode(kind, raw)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func iconRules(sl validator.StructLevel) {
	icon := sl.Current().Interface().(Icon)

	hasSymbol := icon.SymbolName != ""
	hasImage := len(icon.ImageData) > 0
	switch {
	case hasSymbol && hasImage:
		sl.ReportError(icon.ImageData, "imageData", "ImageData", "excluded_with", "symbolName")
		return
	case !hasSymbol && !hasImage:
		sl.ReportError(icon.SymbolName, "symbolName", "SymbolName", "required_without", "imageData")
		return
	case hasSymbol:
		return
	}

	if len(icon.ImageData) > MaxImageSize {
		sl.ReportError(icon.ImageData, "imageData", "ImageData", "max", fmt.Sprint(MaxImageSize))
		return
	}
	if !isImage(icon.ImageData) {
		sl.ReportError(icon.ImageData, "imageData", "ImageData", "imagetype", "")
	}
}

func isImage(data []byte) bool {
	mt := mimetype.Detect(data)
	for _, t := range imageTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

func liveActivityRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(LiveActivity)
	if d.TrailingText != "" && d.Progress != nil {
		sl.ReportError(d.Progress, "progress", "Progress", "excluded_with", "trailingText")
	}
}

func widgetRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(LockScreenWidget)
	if d.Gauge != nil && d.Style != WidgetCircular {
		sl.ReportError(d.Gauge, "gauge", "Gauge", "circularonly", "")
	}
}

// fieldPath turns "LiveActivity.Base.id" into "id" and
// "NotchExperience.tab.icon.imageData" into "tab.icon.imageData".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "Base" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}

func reason(tag, param string) string {
	switch tag {
	case "required", "notblank":
		return "is required"
	case "max":
		return "exceeds maximum length " + param
	case "oneof":
		return "must be one of: " + param
	case "hexcolor":
		return "must be a hex color"
	case "gte", "lte":
		return "must be between 0 and 1"
	case "nomarkup":
		return "must be plain text"
	case "excluded_with":
		return "cannot be combined with " + param
	case "required_without":
		return "required when " + param + " is absent"
	case "imagetype":
		return "must be png, jpeg, gif or webp image data"
	case "circularonly":
		return "only allowed with the circular style"
	}
	return "failed " + tag
}
