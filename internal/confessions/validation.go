package confessions

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce     sync.Once
	validatorInstance *validator.Validate
)

// Draft is the caller-supplied input for a new confession.
type Draft struct {
	Content        string
	Category       string
	RevealIdentity bool
}

type draftInput struct {
	Content  string `json:"content" validate:"min=10,max=500"`
	Category string `json:"category" validate:"oneof=funny serious venting appreciation question other"`
}

type commentInput struct {
	Content string `json:"content" validate:"required,max=500"`
}

func inputValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validatorInstance = v
	})
	return validatorInstance
}

// normalizeDraft trims the content, resolves the category and checks the length bounds.
func normalizeDraft(draft Draft) (draftInput, error) {
	category, err := ParseCategory(draft.Category)
	if err != nil {
		return draftInput{}, err
	}
	input := draftInput{
		Content:  strings.TrimSpace(draft.Content),
		Category: string(category),
	}
	if err := validateInput(input); err != nil {
		return draftInput{}, err
	}
	return input, nil
}

func normalizeComment(content string) (commentInput, error) {
	input := commentInput{Content: strings.TrimSpace(content)}
	if err := validateInput(input); err != nil {
		return commentInput{}, err
	}
	return input, nil
}

func validateInput(input any) error {
	err := inputValidator().Struct(input)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, validationMessage(fieldErr.Field(), fieldErr.Tag(), fieldErr.Param()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

func validationMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
