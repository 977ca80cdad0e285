package camera

// Logger is the subset of the service logger the capture code needs
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}
