package chunk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WaitReason names what a pipeline goroutine is currently blocked on. It's
// surfaced through StartWaitLogger for diagnosing why a backup/restore run is
// slower than expected.
type WaitReason string

var EWaitReason = WaitReason("")

func (WaitReason) RAMToSchedule() WaitReason { return WaitReason("RAM") }
func (WaitReason) EmptyChunk() WaitReason    { return WaitReason("EmptyChunk") }
func (WaitReason) FilledChunk() WaitReason   { return WaitReason("FilledChunk") }
func (WaitReason) Disk() WaitReason          { return WaitReason("Disk") }
func (WaitReason) Codec() WaitReason         { return WaitReason("Codec") }
func (WaitReason) Done() WaitReason          { return WaitReason("Done") }
func (WaitReason) Cancelled() WaitReason     { return WaitReason("Cancelled") }

func (wr WaitReason) String() string { return string(wr) } // avoid reflection; called a lot

type waitEvent struct {
	chunkOffset int64
	reason      WaitReason
	waitStart   time.Time
}

var waitEvents chan waitEvent

// LogWaitReason records that the chunk at offset began waiting for reason.
// Cheap no-op when no logger has been started.
func LogWaitReason(offset int64, reason WaitReason) {
	if waitEvents == nil {
		return
	}
	defer func() { recover() }() // writing after StopWaitLogger closed the channel
	waitEvents <- waitEvent{chunkOffset: offset, reason: reason, waitStart: time.Now()}
}

// StartWaitLogger begins recording wait events to <logFolder>/chunkwaitlog.csv.
// Intended for performance troubleshooting, not normal operation.
func StartWaitLogger(logFolder string) {
	waitEvents = make(chan waitEvent, 100000)
	go waitLoggerWorker(logFolder)
}

// StopWaitLogger flushes and closes the wait log, if one was started.
func StopWaitLogger() {
	if waitEvents == nil {
		return
	}
	close(waitEvents)
	for len(waitEvents) > 0 {
		time.Sleep(10 * time.Millisecond)
	}
}

func waitLoggerWorker(logFolder string) {
	f, err := os.Create(filepath.Join(logFolder, "chunkwaitlog.csv"))
	if err != nil {
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	_, _ = w.WriteString("Offset,Reason,WaitStart\n")
	for e := range waitEvents {
		_, _ = w.WriteString(fmt.Sprintf("%d,%s,%s\n", e.chunkOffset, e.reason, e.waitStart.Format(time.RFC3339Nano)))
	}
}
