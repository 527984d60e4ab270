package models

import (
	"errors"
	"fmt"
	"strings"

	"krabbel/config"

	"github.com/go-playground/validator/v10"
)

// Submission is the raw form input for a new post.
type Submission struct {
	Author  string `validate:"required"`
	Content string `validate:"required"`
	Type    PostType
	Image   string `validate:"omitempty,url"`
}

// ValidationError reports the first field that blocked a submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BuildPayload validates a submission and packages it for the store. The
// returned payload carries the initial status; ID and Timestamp stay unset.
func BuildPayload(sub Submission) (NewPostPayload, error) {
	sub.Author = strings.TrimSpace(sub.Author)
	sub.Content = strings.TrimSpace(sub.Content)
	sub.Image = strings.TrimSpace(sub.Image)
	if sub.Type == "" {
		sub.Type = TypeGuestbook
	}
	if sub.Type != TypeGuestbook && sub.Type != TypeAdmin {
		return NewPostPayload{}, &ValidationError{Field: "type", Reason: "unknown post type"}
	}

	if err := validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return NewPostPayload{}, fieldError(fieldErrs[0])
		}
		return NewPostPayload{}, err
	}

	if err := validate.Var(sub.Author, fmt.Sprintf("max=%d", config.MaxAuthorLen)); err != nil {
		return NewPostPayload{}, &ValidationError{Field: "author", Reason: fmt.Sprintf("at most %d characters", config.MaxAuthorLen)}
	}

	limit := config.MaxContentLen
	if sub.Type == TypeAdmin {
		limit = config.MaxAdminContentLen
	}
	if err := validate.Var(sub.Content, fmt.Sprintf("max=%d", limit)); err != nil {
		return NewPostPayload{}, &ValidationError{Field: "content", Reason: fmt.Sprintf("at most %d characters", limit)}
	}

	return NewPostPayload{
		Author:  sub.Author,
		Content: sub.Content,
		Image:   sub.Image,
		Type:    sub.Type,
		Status:  InitialStatus(sub.Type),
	}, nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case "max":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("at most %s characters", fe.Param())}
	case "url":
		return &ValidationError{Field: field, Reason: "must be a valid URL"}
	}
	return &ValidationError{Field: field, Reason: fe.Error()}
}
