package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/seowallet/internal/models"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("currency", validateCurrency)
	_ = validate.RegisterValidation("owner_kind", validateOwnerKind)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Empty value passes, combine with 'required' if needed
func validateCurrency(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseCurrency(value)
	return err == nil
}

func validateOwnerKind(fl validator.FieldLevel) bool {
	_, err := models.ParseOwnerKind(fl.Field().String())
	return err == nil
}
