package channel

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	if err := v.RegisterValidation("hexint", func(fl validator.FieldLevel) bool {
		_, err := parseHexInt(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
		_, err := hexutil.Decode(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("hexaddress", func(fl validator.FieldLevel) bool {
		b, err := hexutil.Decode(fl.Field().String())
		return err == nil && len(b) == 20
	}); err != nil {
		panic(err)
	}
	return v
}
