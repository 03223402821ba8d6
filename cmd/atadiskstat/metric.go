// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {
}

func outputMetrics(out io.Writer, state Devices) {
	var (
		mDriveInfo = prometheus.NewDesc(
			"ata_drive_info",
			"Info metric regarding the detected drives",
			[]string{"device", "model", "serial", "firmware", "protocol"}, nil,
		)
		mSMARTHealthy = prometheus.NewDesc(
			"ata_smart_healthy",
			"Boolean describing whether SMART RETURN STATUS reports no exceeded threshold",
			[]string{"device"}, nil,
		)
		mLastDuration = prometheus.NewDesc(
			"ata_last_command_duration_seconds",
			"Duration of the last command issued to the drive as reported by the transport",
			[]string{"device"}, nil,
		)
		mLastStatus = prometheus.NewDesc(
			"ata_last_status_register",
			"ATA status register returned by the last command",
			[]string{"device"}, nil,
		)
	)
	mc := &metricCollector{}
	for _, s := range state {
		mc.m = append(mc.m,
			prometheus.MustNewConstMetric(mDriveInfo, prometheus.GaugeValue, 1,
				s.Device, s.Identity.Model, s.Identity.SerialNumber, s.Identity.Firmware, s.Identity.Protocol))
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mLastDuration, prometheus.GaugeValue, s.LastDuration.Seconds(), s.Device))
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mLastStatus, prometheus.GaugeValue, float64(s.LastStatus), s.Device))

		// Only visible if the bridge passes SMART through
		if s.Healthy == nil {
			continue
		}
		healthy := float64(0)
		if *s.Healthy {
			healthy = 1
		}
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mSMARTHealthy, prometheus.GaugeValue, healthy, s.Device))
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			log.Fatalf("Failed to serialize metrics: %v", err)
		}
	}
}
