package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Validator 对 go-playground/validator 的封装，错误统一标记为 ErrValidationFailed
type Validator struct {
	validate *validator.Validate
}

// NewValidator 创建验证器，额外注册 endpoint 标签（host:port，端口 1-65535）
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("endpoint", isEndpoint)
	return &Validator{validate: v}
}

func isEndpoint(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p > 0 && p <= 65535
}

// Validate 按 validate 标签检查结构体
func (v *Validator) Validate(cfg any) error {
	if cfg == nil {
		return ErrNilConfig
	}
	if err := v.validate.Struct(cfg); err != nil {
		return wrapValidation(err)
	}
	return nil
}

// ValidateWithCustom 注册额外的标签后再验证，同名标签会被覆盖
func (v *Validator) ValidateWithCustom(cfg any, rules map[string]validator.Func) error {
	for tag, fn := range rules {
		if err := v.validate.RegisterValidation(tag, fn); err != nil {
			return errors.Wrapf(err, "config: register validation %q", tag)
		}
	}
	return v.Validate(cfg)
}

// MustValidate 失败时 panic，仅用于启动阶段
func (v *Validator) MustValidate(cfg any) {
	if err := v.Validate(cfg); err != nil {
		panic(err)
	}
}

// ValidateField 用单个标签表达式检查一个值
func (v *Validator) ValidateField(field any, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return wrapValidation(err)
	}
	return nil
}

func wrapValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Mark(errors.Wrap(err, "config: validate"), ErrValidationFailed)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.Wrapf(ErrValidationFailed, "%s", strings.Join(msgs, "; "))
}

var tagMessages = map[string]string{
	"required":      "is required",
	"min":           "must be at least %s",
	"max":           "must be at most %s",
	"gte":           "must be >= %s",
	"lte":           "must be <= %s",
	"oneof":         "must be one of [%s]",
	"hostname_port": "must be host:port",
	"endpoint":      "must be host:port with port 1-65535",
}

func describe(fe validator.FieldError) string {
	name := fe.Namespace()
	if name == "" {
		name = fe.Field()
	}
	if name == "" {
		name = "value"
	}
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %q", name, fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		msg = fmt.Sprintf(msg, fe.Param())
	}
	return name + " " + msg
}
