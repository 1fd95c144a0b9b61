// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// symbolRegex matches exchange-style crypto tickers (BTC, ETH, DOGE, 1INCH).
var symbolRegex = regexp.MustCompile(`^[0-9A-Z]{1,20}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("trade_side", validateTradeSide)
		_ = v.RegisterValidation("order_type", validateOrderType)
		_ = v.RegisterValidation("crypto_symbol", validateSymbol)
		_ = v.RegisterValidation("leaderboard_period", validateLeaderboardPeriod)
	}
}

func validateTradeSide(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "buy", "sell":
		return true
	}
	return false
}

func validateOrderType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "market", "limit":
		return true
	}
	return false
}

func validateSymbol(fl validator.FieldLevel) bool {
	return symbolRegex.MatchString(fl.Field().String())
}

func validateLeaderboardPeriod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "all_time", "weekly":
		return true
	}
	return false
}
