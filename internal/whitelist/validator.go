package whitelist

import (
	"github.com/welldanyogia/replydesk/backend/internal/api"
)

// MaxAddressLength is the longest address accepted, per RFC 5321
const MaxAddressLength = 254

// AddRequest is the body of POST /auto-reply/whitelist.
// The address format is checked by the service after trimming and lowercasing.
type AddRequest struct {
	EmailAddress string `json:"email_address" validate:"required"`
}

// validateAddress checks a normalized address
func validateAddress(address string) error {
	if err := api.GetValidator().Var(address, "required,email,max=254"); err != nil {
		return ErrInvalidAddress
	}
	return nil
}
