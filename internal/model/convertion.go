package model

import (
	"github.com/gritlabs/backend/internal/entity"
)

func ConvertUser(user *entity.User, credentials []entity.Credential) User {
	if user == nil {
		return User{}
	}

	modelCredentials := []Credential{}
	for _, c := range credentials {
		modelCredentials = append(modelCredentials, Credential{
			Service:       c.Service,
			ServiceUserID: c.ServiceUserID,
			Verified:      c.Verified,
		})
	}

	return User{
		ID:              user.ID,
		Name:            user.Name,
		Email:           user.Email.String,
		WalletAddress:   user.WalletAddress.String,
		AccountRef:      user.AccountRef.String,
		Role:            user.Role,
		AutoEntry:       user.AutoEntry,
		ShippingName:    user.ShippingName,
		ShippingAddress: user.ShippingAddress,
		Credentials:     modelCredentials,
	}
}

func ConvertRaffleWinner(winner *entity.RaffleWinner) RaffleWinner {
	if winner == nil {
		return RaffleWinner{}
	}

	return RaffleWinner{
		WindowDate:      winner.WindowDate,
		AccountRef:      winner.AccountRef,
		PrizeID:         winner.PrizeID,
		PrizeName:       winner.PrizeName,
		PrizeSponsor:    winner.PrizeSponsor,
		ShippingName:    winner.ShippingName,
		ShippingAddress: winner.ShippingAddress,
		Shipped:         winner.Shipped,
	}
}
