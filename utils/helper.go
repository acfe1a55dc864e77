package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func UniqueSlice[T comparable](s []T) []T {
	seen := make(map[T]bool, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func MergeIntSlices(slices ...[]int) []int {
	merged := make([]int, 0)
	for _, s := range slices {
		merged = append(merged, s...)
	}
	return UniqueSlice(merged)
}

// NewReceiptToken returns a short human-legible receipt token ("R" + 8 hex
// chars). Tokens are NOT guaranteed unique here; callers must collision-check
// against the pos_sales table before use.
func NewReceiptToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "R" + strings.ToUpper(raw[:8])
}
