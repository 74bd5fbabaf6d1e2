// Command u3v-probe enumerates U3V-capable devices, opens the last one
// found, logs its ABRM identity fields and capability bits, and closes
// it again. It exists to exercise Camera/ControlHandle end to end
// against real hardware; it is not a general-purpose CLI.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halvard-vision/u3v"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "overall probe timeout")
	flag.Parse()

	logger := logrus.New()
	u3v.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cameras, err := u3v.Enumerate(ctx)
	if err != nil {
		logger.WithError(err).Fatal("enumerate failed")
	}
	if len(cameras) == 0 {
		logger.Info("no U3V devices found")
		os.Exit(1)
	}

	cam := cameras[len(cameras)-1]
	logger.WithField("device", cam.Info.String()).Info("opening last enumerated device")

	if err := cam.Open(ctx); err != nil {
		logger.WithError(err).Fatal("open failed")
	}
	defer cam.Close()

	abrm := cam.Handle.ABRM()

	manufacturer, err := abrm.ManufacturerName()
	if err != nil {
		logger.WithError(err).Error("reading manufacturer name")
	}
	model, err := abrm.ModelName()
	if err != nil {
		logger.WithError(err).Error("reading model name")
	}
	serial, err := abrm.SerialNumber()
	if err != nil {
		logger.WithError(err).Error("reading serial number")
	}
	version, err := abrm.DeviceVersion()
	if err != nil {
		logger.WithError(err).Error("reading device version")
	}

	logger.WithFields(logrus.Fields{
		"manufacturer": manufacturer,
		"model":        model,
		"serial":       serial,
		"version":      version,
	}).Info("device identity")

	capability := abrm.DeviceCapabilityFlags()
	logger.WithFields(logrus.Fields{
		"userDefinedName":    capability.UserDefinedName(),
		"readAccess":         capability.ReadAccess(),
		"writeAccess":        capability.WriteAccess(),
		"messageChannel":     capability.MessageChannel(),
		"timestamp":          capability.Timestamp(),
		"stringEncodingUTF8": capability.StringEncodingUTF8(),
		"familyName":         capability.FamilyName(),
		"sbrm":               capability.SBRM(),
		"eventChannel":       capability.EventChannel(),
	}).Info("device capability bits")

	if sbrm, err := cam.Handle.SBRM(); err == nil {
		speed, err := sbrm.CurrentSpeed()
		if err != nil {
			logger.WithError(err).Error("reading current speed")
		} else {
			logger.WithField("speed", speed).Info("negotiated bus speed")
		}
	}
}
