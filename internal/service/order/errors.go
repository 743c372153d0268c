package order

import "errors"

// Domain failure discriminants, carried as the cause of the returned
// errorbank.AppError.
var (
	ErrBranchResolution          = errors.New("no branch found for user")
	ErrMalformedBatch            = errors.New("line lists differ in length")
	ErrLineValidation            = errors.New("invalid line input")
	ErrProductNotFound           = errors.New("product not found or archived")
	ErrNotFoundOrAlreadyArchived = errors.New("line not found or already archived")
)
