package service

import (
	"errors"

	"github.com/sakashimaa/go-auction-next/services/auction/internal/repository"
)

var (
	ErrNotFound       = repository.ErrAuctionNotFound
	ErrConflict       = repository.ErrVersionConflict
	ErrForbidden      = errors.New("only the seller may modify this auction")
	ErrAuctionNotLive = errors.New("auction is no longer live")
	ErrAuctionHasBids = errors.New("auction already has bids")
)
