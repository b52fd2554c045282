// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version reports the build of a command, set at link time with
//
//	-ldflags "-X httpremoting.io/version.GitSHA=... -X httpremoting.io/version.BuildTime=..."
//
// where BuildTime is in RFC 3339 format.
package version // import "httpremoting.io/version"

import (
	"fmt"
	"time"
)

// Set by the linker.
var (
	BuildTime = ""
	GitSHA    = ""
)

// Version returns a newline-terminated string describing the current
// version of the build.
func Version() string {
	if GitSHA == "" {
		return "devel\n"
	}
	str := fmt.Sprintf("Git hash:   %s\n", GitSHA)
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		str = fmt.Sprintf("Build time: %s\n", t.In(time.UTC).Format(time.Stamp+" 2006 UTC")) + str
	}
	return str
}
