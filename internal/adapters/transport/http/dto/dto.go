package dto

import (
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type RegisterDTO struct {
	FullName string `json:"fullName" form:"fullName" validate:"notblank"`
	Email    string `json:"email"    form:"email"    validate:"notblank,contains=@"`
	Username string `json:"username" form:"username" validate:"notblank"`
	Password string `json:"password" form:"password" validate:"notblank"`

	Avatar     model.ImageSource `json:"-" form:"-" validate:"-"`
	CoverImage model.ImageSource `json:"-" form:"-" validate:"-"`
}

// LoginDTO accepts either identifier. When both are set the username wins.
type LoginDTO struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email"    validate:"required_without=Username"`
	Password string `json:"password" validate:"notblank"`
}

type RefreshDTO struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"oldPassword" validate:"notblank"`
	NewPassword string `json:"newPassword" validate:"notblank"`
}

type UpdateProfileDTO struct {
	FullName string `json:"fullName" validate:"notblank"`
	Email    string `json:"email"    validate:"notblank,contains=@"`
}

type TokensDTO struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResponseDTO struct {
	User model.PublicAccount `json:"user"`
	TokensDTO
}

// NewValidator returns a validator with the custom tags used by the DTOs above.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}
