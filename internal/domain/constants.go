package domain

import "time"

const (
	DefaultServiceName            = "camel"
	DefaultAnnounceAddress        = "auto"
	DefaultGRPCPort               = 9190
	DefaultRegistrationRetries    = 12
	DefaultRegistrationWaitSecs   = 5
	DefaultRegistrationDelaySecs  = 5
	DefaultRegistrationPeriodSecs = 5
	DefaultDataDir                = "/tmp"
	DefaultReceiveTimeout         = 5000 * time.Millisecond
	DefaultRPCMaxRecvMsgSize      = 16 * 1024 * 1024
	DefaultRPCMaxSendMsgSize      = 16 * 1024 * 1024
	DefaultRPCKeepaliveTime       = 30 * time.Second
	DefaultRPCKeepaliveTimeout    = 10 * time.Second
	DefaultShutdownTimeout        = 5 * time.Second
	DefaultInputSchemaType        = "object"
	DefaultPropertyType           = "string"
	StateFileName                 = "capd.db"
)
