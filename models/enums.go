package models

import "errors"

type ProductType string

const (
	ProductTypeProduct ProductType = "product"
	ProductTypeService ProductType = "service"
)

func (t *ProductType) Parse(str string) error {
	switch str {
	case "product":
		*t = ProductTypeProduct
	case "service":
		*t = ProductTypeService
	default:
		return errors.New("invalid product type")
	}
	return nil
}

type AccountType string

const (
	AccountTypeAsset           AccountType = "asset"
	AccountTypeLiability       AccountType = "liability"
	AccountTypeEquity          AccountType = "equity"
	AccountTypeRevenue         AccountType = "revenue"
	AccountTypeCostOfGoodsSold AccountType = "cost_of_goods_sold"
	AccountTypeExpense         AccountType = "expense"
)

func (t *AccountType) Parse(str string) error {
	switch str {
	case "asset":
		*t = AccountTypeAsset
	case "liability":
		*t = AccountTypeLiability
	case "equity":
		*t = AccountTypeEquity
	case "revenue":
		*t = AccountTypeRevenue
	case "cost_of_goods_sold":
		*t = AccountTypeCostOfGoodsSold
	case "expense":
		*t = AccountTypeExpense
	default:
		return errors.New("invalid account type")
	}
	return nil
}

type UserRole string

const (
	UserRoleAdmin  UserRole = "A"
	UserRoleOwner  UserRole = "O"
	UserRoleCommon UserRole = "C"
)
