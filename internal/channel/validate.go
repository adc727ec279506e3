package channel

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		out := sl.Current().Interface().(OutgoingMessage)
		if strings.TrimSpace(out.Content) == "" && len(out.Images) == 0 && strings.TrimSpace(out.OrderID) == "" {
			sl.ReportError(out.Content, "Content", "content", "content_images_or_order", "")
		}
	}, OutgoingMessage{})
	return v
}

// ValidateOutgoing checks an outgoing message before it is emitted.
func ValidateOutgoing(out OutgoingMessage) error {
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// ValidateJoin checks a join payload.
func ValidateJoin(join JoinPayload) error {
	if err := validate.Struct(join); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
