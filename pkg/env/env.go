// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package env reports which deployment environment the process runs in,
// taken from the ENV variable. Local is the default.
package env

import "github.com/spf13/viper"

const (
	Local      = "local"
	Production = "production"
)

// Name returns the current environment name.
func Name() string {
	if e := viper.GetString("ENV"); e != "" {
		return e
	}
	return Local
}

func IsLocal() bool {
	return Name() == Local
}

func IsProduction() bool {
	return Name() == Production
}
