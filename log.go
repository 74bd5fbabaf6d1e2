package u3v

import "github.com/sirupsen/logrus"

// log is the package-level logger, following the same "one injectable
// *logrus.Logger, never the global logrus.Std*" convention gostlink uses
// for its ST-Link USB command/ack driver. Applications embedding this
// library call SetLogger to redirect output; by default nothing is
// printed beyond what logrus.New()'s default level (Info) allows, and
// the default output goes to logrus's standard io.Writer (stderr).
var log = logrus.New()

// SetLogger replaces the package-level logger. Passing nil restores a
// fresh default logger.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		log = logrus.New()
		return
	}
	log = l
}
