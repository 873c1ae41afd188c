package services

import (
	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/server/passwords"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

func (u NewUser) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.FirstName, validation.Length(0, 100)),
		validation.Field(&u.LastName, validation.Length(0, 100)),
		validation.Field(&u.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&u.Role, validation.Length(0, 50)),
	)
	if err != nil {
		return common.NewError(common.ErrValidation, err.Error(), nil)
	}
	return passwords.Validate(u.Password)
}

func (u UserUpdate) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.FirstName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.LastName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&u.Email, validation.NilOrNotEmpty, validation.Length(3, 255), is.Email),
		validation.Field(&u.Role, validation.Length(0, 50)),
	)
	if err != nil {
		return common.NewError(common.ErrValidation, err.Error(), nil)
	}
	if u.Password != nil {
		return passwords.Validate(*u.Password)
	}
	return nil
}
