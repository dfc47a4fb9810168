package repository

import "errors"

var (
	ErrItemNotFound = errors.New("item not found")
)
