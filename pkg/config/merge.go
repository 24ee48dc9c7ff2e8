package config

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// MergeConfig 将 src 中的非零值覆盖到 dst 并返回 dst。
// 结构体和指针逐字段递归，map 按 key 合并，切片整体替换。
// 任一方为 nil 时返回另一方，两者都为 nil 时报错。
func MergeConfig[T any](dst, src *T) (*T, error) {
	switch {
	case dst == nil && src == nil:
		return nil, errors.Wrap(ErrNilConfig, "config: merge")
	case dst == nil:
		return src, nil
	case src == nil:
		return dst, nil
	}
	if err := merge(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem(), ""); err != nil {
		return nil, err
	}
	return dst, nil
}

func merge(dst, src reflect.Value, path string) error {
	if !src.IsValid() || empty(src) {
		return nil
	}
	if dst.Kind() != src.Kind() {
		return errors.Newf("config: merge %s: kind mismatch %s != %s", path, dst.Kind(), src.Kind())
	}

	switch src.Kind() {
	case reflect.Struct:
		t := src.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			d := dst.FieldByName(f.Name)
			if !d.CanSet() {
				continue
			}
			if err := merge(d, src.Field(i), join(path, f.Name)); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return merge(dst.Elem(), src.Elem(), path)
	case reflect.Map:
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
		}
		it := src.MapRange()
		for it.Next() {
			cur := dst.MapIndex(it.Key())
			if !cur.IsValid() {
				dst.SetMapIndex(it.Key(), it.Value())
				continue
			}
			// map 元素不可寻址，复制后再写回
			tmp := reflect.New(dst.Type().Elem()).Elem()
			tmp.Set(cur)
			if err := merge(tmp, it.Value(), join(path, "["+it.Key().String()+"]")); err != nil {
				return err
			}
			dst.SetMapIndex(it.Key(), tmp)
		}
	default:
		if dst.CanSet() {
			dst.Set(src)
		}
	}
	return nil
}

// empty 空切片和空 map 也视为未设置
func empty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
