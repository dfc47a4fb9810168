package repository

import "errors"

var (
	ErrAuctionNotFound = errors.New("auction not found")
)
