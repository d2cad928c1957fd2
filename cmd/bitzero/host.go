package main

import (
	"context"
	"io"

	"github.com/tetratelabs/bitzero/api"
)

// puts implements "int puts(const char *s)" by writing s and a newline to w.
func puts(w io.Writer) api.GoFunction {
	return func(_ context.Context, mod api.Module, params []api.Value) (api.Value, error) {
		s, err := mod.Memory().ReadString(params[0])
		if err != nil {
			return api.I32(-1), err
		}
		if _, err = io.WriteString(w, s+"\n"); err != nil {
			return api.I32(-1), err
		}
		return api.I32(int32(len(s) + 1)), nil
	}
}

// putchar implements "int putchar(int c)" by writing the low byte of c to w.
func putchar(w io.Writer) api.GoFunction {
	return func(_ context.Context, _ api.Module, params []api.Value) (api.Value, error) {
		c := params[0].I32()
		if _, err := w.Write([]byte{byte(c)}); err != nil {
			return api.I32(-1), err
		}
		return api.I32(c & 0xff), nil
	}
}
