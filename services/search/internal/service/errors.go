package service

import "github.com/sakashimaa/go-auction-next/services/search/internal/repository"

var ErrNotFound = repository.ErrItemNotFound
