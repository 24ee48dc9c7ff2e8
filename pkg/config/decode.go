package config

import (
	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
)

// DecodeMap 将松散的 map（如策略的 ExtendData）解码到结构体
// 使用弱类型转换："60" 和 60 都能解码到 int，"30s" 能解码到 time.Duration
func DecodeMap(input map[string]any, target any) error {
	if target == nil {
		return ErrNilConfig
	}
	if len(input) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := dec.Decode(input); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode map"), ErrInvalidConfigFormat)
	}
	return nil
}
