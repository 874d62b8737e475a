package go_nrepl

import "github.com/go-i2p/logger"

// log is the package logger. Level follows the DEBUG_I2P environment
// variable read by github.com/go-i2p/logger.
var log = logger.GetGoI2PLogger()
