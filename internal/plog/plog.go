// Package plog is the library's internal logging seam. It exists so that
// cursor descents, bucket loads, and mutation level transitions can be
// traced without forcing a logging dependency or verbosity choice on
// callers: everything here logs at Debug or below, and a caller who never
// configures logrus simply never sees it.
package plog

import "github.com/sirupsen/logrus"

// Log is the package-level logger used throughout prollipop. Callers may
// reconfigure it (level, formatter, output) since it is a *logrus.Logger,
// not the global logrus singleton.
var Log = logrus.New()

func init() {
	Log.SetLevel(logrus.WarnLevel)
}

// Fields is a short alias to keep call sites in the rest of the module
// terse.
type Fields = logrus.Fields
