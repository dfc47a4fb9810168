package service

import (
	"errors"

	"github.com/sakashimaa/go-auction-next/services/bidding/internal/repository"
)

var (
	ErrNotFound      = repository.ErrAuctionNotFound
	ErrSelfBid       = errors.New("cannot bid on your own auction")
	ErrInvalidAmount = errors.New("bid amount must be positive")
)
