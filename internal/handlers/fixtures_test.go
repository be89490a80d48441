package handlers_test

import (
	"github.com/charlesng35/tradepost/internal/models"
)

const (
	seller = "seller-1"
	buyer  = "buyer-1"
	other  = "buyer-2"
)

func marketplaceProfiles() []models.Profile {
	return []models.Profile{
		{UserID: seller, DisplayName: "Sam Seller", Rating: 4.9, ReviewCount: 31, Phone: "+1 (555) 010-2000", Address: "1 Dock Road\nPortsmouth"},
		{UserID: buyer, DisplayName: "Bea Buyer", Phone: "+1 555 010 3000"},
		{UserID: other, DisplayName: "Otto"},
	}
}
