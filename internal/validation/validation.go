// Package validation traduit les erreurs de validator en models.ValidationError.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"boutique_back_end/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Les champs sont nommés d'après leur tag json pour coller aux réponses de l'API.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct valide s et retourne un *models.ValidationError champ par champ.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &models.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "ce champ est obligatoire"
	case "email":
		return "adresse email invalide"
	case "max":
		return "ne doit pas dépasser " + fe.Param() + " caractères"
	case "min":
		if fe.Kind() == reflect.Int {
			return "doit être supérieur ou égal à " + fe.Param()
		}
		return "doit contenir au moins " + fe.Param() + " caractères"
	case "eqfield":
		return "ne correspond pas"
	case "alphanum":
		return "lettres et chiffres uniquement"
	case "oneof":
		return "doit valoir " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "valeur invalide"
}
