package odinctl

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/odin-imager/odin/common"
)

// beginSession opens a job-scoped logger for one backup/restore/verify run,
// installs it as the process-wide common.CurrentSessionLogger (the way
// deeply-nested collaborators like the codec stages expect to find it), and
// returns a cleanup func that closes it.
func beginSession(level common.LogLevel, suffix string) (common.SessionID, func()) {
	id := common.NewSessionID()
	logger := common.NewJobLogger(id, level, common.LogPathFolder, suffix)
	logger.OpenLog()
	common.CurrentSessionLogger = logger
	return id, func() {
		logger.CloseLog()
		common.CurrentSessionLogger = nil
	}
}

// cancellableContext returns a context cancelled on SIGINT/SIGTERM, so a
// Ctrl-C during a long backup/restore stops the pipeline's stages at their
// next chunk boundary instead of killing the process mid-write.
func cancellableContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
