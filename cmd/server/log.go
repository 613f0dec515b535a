package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/yusufkecer/auth-backend/internal/db"
	"github.com/yusufkecer/auth-backend/internal/handler"
	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/repository"
	"github.com/yusufkecer/auth-backend/internal/scheduler"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/session"
)

const defaultLogFilename = "authserver.log"

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator == nil {
		return len(p), nil
	}
	return logRotator.Write(p)
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend.
var (
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log        = backendLog.Logger("SRVR")
	handlerLog = backendLog.Logger("HNDL")
	mdlwLog    = backendLog.Logger("MDLW")
	svceLog    = backendLog.Logger("SVCE")
	repoLog    = backendLog.Logger("REPO")
	dbLog      = backendLog.Logger("DBSQ")
	schdLog    = backendLog.Logger("SCHD")
)

func init() {
	handler.UseLogger(handlerLog)
	middleware.UseLogger(mdlwLog)
	service.UseLogger(svceLog)
	session.UseLogger(svceLog)
	repository.UseLogger(repoLog)
	db.UseLogger(dbLog)
	scheduler.UseLogger(schdLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"SRVR": log,
	"HNDL": handlerLog,
	"MDLW": mdlwLog,
	"SVCE": svceLog,
	"REPO": repoLog,
	"DBSQ": dbLog,
	"SCHD": schdLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	return nil
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels applies either one level to every subsystem or a
// comma separated list of subsystem=level pairs. The level syntax has
// already been checked by config.Validate; subsystem names are checked here.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, "=") {
		setLogLevels(debugLevel)
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v",
				subsysID, supportedSubsystems())
		}
		setLogLevel(subsysID, logLevel)
	}
	return nil
}
