package config

import (
	"fmt"
	"reflect"
)

// MergeConfig 将 src 中的非零值深度合并到 dst（通常是 DefaultConfig()）
// dst 为 nil 时返回 src，src 为 nil 时返回 dst，两者都为 nil 返回 ErrNilConfig
// 零值不覆盖：bool 只能从 false 改为 true，需要关闭默认开启项的字段应使用指针
func MergeConfig[T any](dst, src *T) (*T, error) {
	if dst == nil && src == nil {
		return nil, ErrNilConfig
	}

	if dst == nil {
		return src, nil
	}

	if src == nil {
		return dst, nil
	}

	if err := merge(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem(), reflect.TypeFor[T]().Name()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	return dst, nil
}

// merge 把 src 递归写入 dst，path 仅用于错误信息
func merge(dst, src reflect.Value, path string) error {
	if !src.IsValid() || skipMerge(src) {
		return nil
	}
	if dst.Kind() != src.Kind() {
		return fmt.Errorf("%s: kind mismatch %s vs %s", path, dst.Kind(), src.Kind())
	}

	switch src.Kind() {
	case reflect.Struct:
		t := src.Type()
		for i := range src.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			df := dst.FieldByName(f.Name)
			if !df.CanSet() {
				continue
			}
			if err := merge(df, src.Field(i), path+"."+f.Name); err != nil {
				return err
			}
		}
	case reflect.Map:
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
		}
		for it := src.MapRange(); it.Next(); {
			k, sv := it.Key(), it.Value()
			existing := dst.MapIndex(k)
			if !existing.IsValid() {
				dst.SetMapIndex(k, sv)
				continue
			}
			// map 元素不可寻址，复制后合并再写回
			tmp := reflect.New(dst.Type().Elem()).Elem()
			tmp.Set(existing)
			if err := merge(tmp, sv, fmt.Sprintf("%s[%v]", path, k)); err != nil {
				return err
			}
			dst.SetMapIndex(k, tmp)
		}
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return merge(dst.Elem(), src.Elem(), path)
	default:
		// 切片整体替换，标量直接覆盖
		if dst.CanSet() {
			dst.Set(src)
		}
	}
	return nil
}

// skipMerge 零值与空集合不覆盖目标
func skipMerge(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
