// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("direction", validateDirection)
		_ = v.RegisterValidation("ledger_type", validateLedgerType)
		_ = v.RegisterValidation("bank_account_type", validateBankAccountType)
		_ = v.RegisterValidation("transaction_source", validateTransactionSource)
		_ = v.RegisterValidation("share_response", validateShareResponse)
		_ = v.RegisterValidation("statement_kind", validateStatementKind)
	}
}

func validateDirection(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "DEBIT", "CREDIT":
		return true
	}
	return false
}

func validateLedgerType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "income", "expense", "asset", "liability":
		return true
	}
	return false
}

func validateBankAccountType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "savings", "current", "credit_card":
		return true
	}
	return false
}

func validateTransactionSource(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "manual", "pdf_upload", "cash", "upload":
		return true
	}
	return false
}

func validateShareResponse(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "accept", "reject":
		return true
	}
	return false
}

func validateStatementKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "text", "tabular", "pdf":
		return true
	}
	return false
}
