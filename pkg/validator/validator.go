package validator

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// 大陆手机号
var phoneRegexp = regexp.MustCompile(`^1([38][0-9]|4[579]|5[0-3,5-9]|6[6]|7[0135678]|9[89])\d{8}$`)

// 6 位数字验证码
var codeRegexp = regexp.MustCompile(`^\d{6}$`)

// IsPhoneInvalid 手机号格式是否非法。
func IsPhoneInvalid(phone string) bool {
	return !phoneRegexp.MatchString(phone)
}

// IsCodeInvalid 验证码格式是否非法。
func IsCodeInvalid(code string) bool {
	return !codeRegexp.MatchString(code)
}

func validatePhone(fl validator.FieldLevel) bool {
	return !IsPhoneInvalid(fl.Field().String())
}

// RegisterBindingRules 把自定义规则挂到 gin 的 binding 校验引擎上，
// 之后可以在结构体 tag 里写 binding:"phone"。
func RegisterBindingRules() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("phone", validatePhone)
}
