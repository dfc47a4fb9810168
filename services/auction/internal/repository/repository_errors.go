package repository

import "errors"

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrVersionConflict = errors.New("auction was modified concurrently")
)
