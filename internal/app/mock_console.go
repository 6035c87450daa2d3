// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/field_computer/internal/mag"
)

func RunMockConsole() error {
	src := mag.NewMockSource()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		sample, err := src.Next()
		if err != nil {
			return err
		}

		heading := mag.HeadingFromField(sample.XuT, sample.YuT)
		fmt.Printf(
			"X=%7.2fuT  Y=%7.2fuT  Z=%7.2fuT  |B|=%6.2fuT  HDG=%6.2f\n",
			sample.XuT,
			sample.YuT,
			sample.ZuT,
			sample.Norm,
			heading,
		)
	}
	return nil
}
