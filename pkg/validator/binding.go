package validator

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
)

var passengerTypes = map[string]bool{"ADULT": true, "CHILD": true, "INFANT": true}

// RegisterGinValidations adds the custom tags used in request structs to
// gin's binding engine: id_phone and passenger_type.
func RegisterGinValidations() error {
	engine, ok := binding.Validator.Engine().(*playground.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	return RegisterValidations(engine)
}

// RegisterValidations registers the custom tags on any validator instance
func RegisterValidations(v *playground.Validate) error {
	if err := v.RegisterValidation("id_phone", func(fl playground.FieldLevel) bool {
		_, err := NormalizePhone(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("failed to register id_phone: %w", err)
	}

	if err := v.RegisterValidation("passenger_type", func(fl playground.FieldLevel) bool {
		return passengerTypes[fl.Field().String()]
	}); err != nil {
		return fmt.Errorf("failed to register passenger_type: %w", err)
	}

	return nil
}
