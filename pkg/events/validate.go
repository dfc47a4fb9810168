package events

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sakashimaa/go-auction-next/pkg/utils"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAuctionCreated checks an AuctionCreated payload. An image URL that
// is only malformed is reported as ErrRecoverableValidation, any other
// failure as ErrPoisonMessage.
func ValidateAuctionCreated(ev *AuctionCreated) error {
	err := validate.Struct(ev)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}

	recoverable := true
	for _, fe := range verrs {
		if fe.Field() != "ImageURL" || fe.Tag() != "url" {
			recoverable = false
			break
		}
	}

	if recoverable {
		return fmt.Errorf("%w: %v", ErrRecoverableValidation, utils.FormatValidationError(verrs))
	}

	return fmt.Errorf("%w: %v", ErrPoisonMessage, utils.FormatValidationError(verrs))
}
