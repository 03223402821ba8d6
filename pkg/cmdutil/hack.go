// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdutil

import (
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

// HackMapper decodes flags of type passthrough.Hack from their names.
func HackMapper() kong.Option {
	return kong.TypeMapper(reflect.TypeOf(passthrough.Hack(0)), kong.MapperFunc(func(ctx *kong.DecodeContext, target reflect.Value) error {
		var name string
		if err := ctx.Scan.PopValueInto("hack", &name); err != nil {
			return err
		}
		h, err := passthrough.ParseHack(name)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(h))
		return nil
	}))
}
