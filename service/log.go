package service

import "log"

func logWarn(format string, args ...any) {
	log.Printf("warning: "+format, args...)
}
